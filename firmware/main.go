//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

var (
	adcRudder machine.ADC
	uart      = machine.UART0

	// ADC averaging - running sum and count
	rudderSum   uint32
	rudderCount int

	// Timing
	lastADCRead time.Time
)

func main() {
	PIN_RUDDER.Configure(machine.PinConfig{Mode: machine.PinInput})

	adcRudder = machine.ADC{Pin: PIN_RUDDER}
	adcRudder.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastADCRead = time.Now()

	for {
		now := time.Now()

		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			readRudderADC()
			lastADCRead = now
		}

		if rudderCount >= NUM_SAMPLES {
			outputAveragedValue()
			rudderSum = 0
			rudderCount = 0
		}

		// Small delay to prevent tight loop (but still allow precise timing)
		time.Sleep(100 * time.Microsecond)
	}
}

func readRudderADC() {
	// Get is scaled to 16 bits whatever the hardware resolution.
	rudderSum += uint32(adcRudder.Get())
	rudderCount++
}

func outputAveragedValue() {
	n := rudderCount
	if n == 0 {
		n = 1
	}
	avg := rudderSum / uint32(n)
	raw := uint16(avg >> (16 - OUTPUT_BITS))

	timestampMicros := time.Now().UnixNano() / 1000

	// Output format: "unix_micros,raw\n"
	// Example: "1234567890123,512\n"
	print(timestampMicros)
	print(",")
	print(raw)
	print("\n")
}
