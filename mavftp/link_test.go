/*
MIT License

Copyright (c) 2024 The Mavftp Authors.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package mavftp

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockSerialPorts(t *testing.T, ports []string, err error) {
	t.Helper()
	saved := listSerialPorts
	listSerialPorts = func() ([]string, error) { return ports, err }
	t.Cleanup(func() { listSerialPorts = saved })
}

func TestParseEndpoint(t *testing.T) {
	assert := assert.New(t)
	assertEndpoint := func(endpoint string, expected gomavlib.EndpointConf) {
		t.Helper()
		conf, err := parseEndpoint(endpoint)
		if assert.NoError(err) {
			assert.Equal(expected, conf)
		}
	}
	assertEndpoint("serial:/dev/ttyACM0", gomavlib.EndpointSerial{Device: "/dev/ttyACM0", Baud: 57600})
	assertEndpoint("serial:/dev/ttyUSB0:115200", gomavlib.EndpointSerial{Device: "/dev/ttyUSB0", Baud: 115200})
	assertEndpoint("serial:COM3:921600", gomavlib.EndpointSerial{Device: "COM3", Baud: 921600})
	assertEndpoint("udp:192.168.1.10:14550", gomavlib.EndpointUDPClient{Address: "192.168.1.10:14550"})
	assertEndpoint("udpin:0.0.0.0:14550", gomavlib.EndpointUDPServer{Address: "0.0.0.0:14550"})
	assertEndpoint("tcp:127.0.0.1:5760", gomavlib.EndpointTCPClient{Address: "127.0.0.1:5760"})
	assertEndpoint("tcpin:0.0.0.0:5760", gomavlib.EndpointTCPServer{Address: "0.0.0.0:5760"})

	mockSerialPorts(t, []string{"/dev/ttyACM0", "/dev/ttyUSB0"}, nil)
	assertEndpoint("serial:auto", gomavlib.EndpointSerial{Device: "/dev/ttyACM0", Baud: 57600})
	assertEndpoint("serial:auto:115200", gomavlib.EndpointSerial{Device: "/dev/ttyACM0", Baud: 115200})
}

func TestParseEndpointError(t *testing.T) {
	assert := assert.New(t)
	assertError := func(endpoint, message string) {
		t.Helper()
		_, err := parseEndpoint(endpoint)
		if assert.Error(err) {
			assert.Equal(message, err.Error())
		}
	}
	assertError("", "Invalid endpoint: ")
	assertError("serial", "Invalid endpoint: serial")
	assertError("udp:", "Invalid endpoint: udp:")
	assertError("ws:host:80", "Unknown endpoint type: ws")
	assertError("serial:/dev/ttyS0:fast", "Invalid baud rate: fast")
	assertError("serial:/dev/ttyS0:0", "Invalid baud rate: 0")

	mockSerialPorts(t, nil, nil)
	assertError("serial:auto", "No serial port found")
	mockSerialPorts(t, nil, newSimpleMavftpError("List serial ports failed: denied"))
	assertError("serial:auto", "List serial ports failed: denied")
}

func TestNewMavlinkLinkBadEndpoint(t *testing.T) {
	_, err := NewMavlinkLink(LinkConfig{Endpoint: "bogus"}, nil, func([]byte) {})
	assert.Error(t, err)
}

func freeUDPAddress(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	address := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return address
}

// startVehicle runs a MAVLink node that acks every FTP request it receives.
func startVehicle(t *testing.T, address string) {
	t.Helper()
	vehicle, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:      []gomavlib.EndpointConf{gomavlib.EndpointUDPServer{Address: address}},
		Dialect:        common.Dialect,
		OutVersion:     gomavlib.V2,
		OutSystemID:    kDefaultSystemID,
		OutComponentID: kDefaultComponentID,
	})
	require.NoError(t, err)
	t.Cleanup(vehicle.Close)
	go func() {
		for evt := range vehicle.Events() {
			frame, ok := evt.(*gomavlib.EventFrame)
			if !ok {
				continue
			}
			msg, ok := frame.Message().(*common.MessageFileTransferProtocol)
			if !ok {
				continue
			}
			req, err := DecodeFTPOp(msg.Payload[:])
			if err != nil {
				continue
			}
			reply := &common.MessageFileTransferProtocol{
				TargetSystem:    frame.SystemID(),
				TargetComponent: frame.ComponentID(),
			}
			copy(reply.Payload[:], ack(req, nil).Encode())
			_ = vehicle.WriteMessageTo(frame.Channel, reply)
		}
	}()
}

func TestMavlinkLinkOverUDP(t *testing.T) {
	assert := assert.New(t)
	address := freeUDPAddress(t)
	startVehicle(t, address)

	var client atomic.Pointer[Client]
	link, err := NewMavlinkLink(LinkConfig{Endpoint: "udp:" + address}, nil, func(record []byte) {
		if c := client.Load(); c != nil {
			c.OnReceive(record)
		}
	})
	require.NoError(t, err)
	defer link.Close()

	cfg := DefaultConfig()
	cfg.Timeout = 500 * time.Millisecond
	client.Store(NewClient(link, cfg))

	result := client.Load().CreateDirectory(t.Context(), "/logs")
	assert.True(result.OK(), result.Message())

	link.Close()
	link.Close()
	assert.Equal(errLinkClosed, link.Send(make([]byte, kRecordSize)))
	assert.Error(link.Send(make([]byte, kRecordSize+1)))
}
