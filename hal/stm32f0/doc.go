// Package stm32f0 implements the hal collaborators on an STM32F0x2 under
// TinyGo (build tags tinygo and stm32f0).
//
// Registers are reached through runtime/volatile at their reset-map
// addresses. Packet memory is read and written as pairs of half words.
// Interrupt masking uses runtime/interrupt, so critical sections nest.
//
//	nvic := stm32f0.NewNVIC()
//	ctrl, err := usb.New(usb.Platform{
//		Clock:  &stm32f0.Clock{},
//		NVIC:   nvic,
//		SysCfg: stm32f0.SysCfg{},
//		CPU:    stm32f0.CPU{},
//		USB:    stm32f0.NewUSB(),
//	}, usb.DefaultConfig())
//	if err != nil {
//		panic(err)
//	}
//	stm32f0.AttachUSB(ctrl.ISR)
//	if err := ctrl.Init(); err != nil {
//		panic(err)
//	}
package stm32f0
