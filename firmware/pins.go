//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 1  // ADC read interval in milliseconds
	NUM_SAMPLES        = 50 // Number of samples averaged per output line

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // Hardware resolution in bits
	OUTPUT_BITS      = 10   // Reported resolution, full scale 1023 to match the daemon's adc_max

	// Rudder potentiometer wiper
	PIN_RUDDER = machine.A1

	// Serial configuration
	// Format "unix_micros,raw\n", e.g. "1234567890123456,1023\n" = ~22 bytes max per line
	// 20 outputs/sec * 22 bytes/line = 440 bytes/sec, far below 115200 baud
	UART_BAUD_RATE = 115200
)
