package idcode

type deviceKey struct {
	manufacturer uint16
	part         uint16
}

var devices = map[deviceKey]Device{
	{0x049, 0x362D}: {Name: "XC7A35T", Family: "Artix-7", IsFPGA: true},
	{0x049, 0x362C}: {Name: "XC7A50T", Family: "Artix-7", IsFPGA: true},
	{0x049, 0x3631}: {Name: "XC7A100T", Family: "Artix-7", IsFPGA: true},
	{0x049, 0x3727}: {Name: "XC7Z020", Family: "Zynq-7000", IsFPGA: true},
	{0x049, 0x3722}: {Name: "XC7Z010", Family: "Zynq-7000", IsFPGA: true},
	{0x049, 0x3651}: {Name: "XC7K325T", Family: "Kintex-7", IsFPGA: true},
	{0x021, 0x1111}: {Name: "LFE5U-25F", Family: "ECP5", IsFPGA: true},
	{0x021, 0x1112}: {Name: "LFE5U-45F", Family: "ECP5", IsFPGA: true},
	{0x021, 0x1113}: {Name: "LFE5U-85F", Family: "ECP5", IsFPGA: true},
	{0x020, 0x6438}: {Name: "STM32F303/F334", Family: "STM32F3"},
	{0x020, 0x6413}: {Name: "STM32F405/407", Family: "STM32F4"},
	{0x23B, 0xBA00}: {Name: "Cortex-M JTAG-DP", Family: "ARM CoreSight"},
}

// LookupDevice returns the known part for a parsed IDCODE. The version
// nibble is ignored.
func LookupDevice(id IDCode) (Device, bool) {
	dev, ok := devices[deviceKey{manufacturer: id.ManufacturerCode, part: id.PartNumber}]
	return dev, ok
}
