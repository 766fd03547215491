package location

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// PortOpener opens the byte stream of a GPS receiver.
type PortOpener interface {
	Open() (io.ReadCloser, error)
}

// SerialPort opens a GPS receiver connected to a serial port.
type SerialPort struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
}

// NewSerialPort creates an opener for the given port and baud rate.
func NewSerialPort(name string, baud int, readTimeout time.Duration) *SerialPort {
	return &SerialPort{Name: name, Baud: baud, ReadTimeout: readTimeout}
}

// Open opens the port. The caller must close it.
func (p *SerialPort) Open() (io.ReadCloser, error) {
	return serial.OpenPort(&serial.Config{
		Name:        p.Name,
		Baud:        p.Baud,
		ReadTimeout: p.ReadTimeout,
	})
}
