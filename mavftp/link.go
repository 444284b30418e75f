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
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"go.bug.st/serial"
)

const (
	kDefaultBaudRate    = 57600
	kDefaultSystemID    = 1
	kDefaultComponentID = 1
	kLocalSystemID      = 254
	kLocalComponentID   = 190
)

// LinkConfig selects the MAVLink endpoint and the vehicle to talk to.
type LinkConfig struct {
	// Endpoint is one of serial:<device>[:<baud>], serial:auto[:<baud>],
	// udp:<host>:<port>, udpin:<addr>:<port>, tcp:<host>:<port> or tcpin:<addr>:<port>.
	Endpoint        string
	TargetSystem    uint8
	TargetComponent uint8
	LocalSystem     uint8
}

// ListSerialPorts returns the serial devices present on this machine, sorted.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, simpleMavftpError("List serial ports failed: %v", err)
	}
	sort.Strings(ports)
	return ports, nil
}

var listSerialPorts = ListSerialPorts

func parseBaudRate(str string) (int, error) {
	if str == "" {
		return kDefaultBaudRate, nil
	}
	baud, err := strconv.Atoi(str)
	if err != nil || baud <= 0 {
		return 0, simpleMavftpError("Invalid baud rate: %s", str)
	}
	return baud, nil
}

// parseEndpoint turns the endpoint string into a gomavlib endpoint.
func parseEndpoint(endpoint string) (gomavlib.EndpointConf, error) {
	kind, rest, ok := strings.Cut(endpoint, ":")
	if !ok || rest == "" {
		return nil, simpleMavftpError("Invalid endpoint: %s", endpoint)
	}
	switch kind {
	case "serial":
		device, baudStr := rest, ""
		if idx := strings.LastIndex(rest, ":"); idx >= 0 {
			device, baudStr = rest[:idx], rest[idx+1:]
		}
		baud, err := parseBaudRate(baudStr)
		if err != nil {
			return nil, err
		}
		if device == "auto" {
			ports, err := listSerialPorts()
			if err != nil {
				return nil, err
			}
			if len(ports) == 0 {
				return nil, newSimpleMavftpError("No serial port found")
			}
			device = ports[0]
		}
		return gomavlib.EndpointSerial{Device: device, Baud: baud}, nil
	case "udp":
		return gomavlib.EndpointUDPClient{Address: rest}, nil
	case "udpin":
		return gomavlib.EndpointUDPServer{Address: rest}, nil
	case "tcp":
		return gomavlib.EndpointTCPClient{Address: rest}, nil
	case "tcpin":
		return gomavlib.EndpointTCPServer{Address: rest}, nil
	default:
		return nil, simpleMavftpError("Unknown endpoint type: %s", kind)
	}
}

// MavlinkLink carries FTP records inside FILE_TRANSFER_PROTOCOL messages.
type MavlinkLink struct {
	node            *gomavlib.Node
	targetSystem    uint8
	targetComponent uint8
	localSystem     uint8
	logger          Logger
	closeOnce       sync.Once
	done            chan struct{}
}

// NewMavlinkLink opens the endpoint. onReceive is called from the link goroutine
// with the payload of every FILE_TRANSFER_PROTOCOL message the vehicle addresses to us.
func NewMavlinkLink(cfg LinkConfig, logger Logger, onReceive func([]byte)) (*MavlinkLink, error) {
	endpoint, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.TargetSystem == 0 {
		cfg.TargetSystem = kDefaultSystemID
	}
	if cfg.TargetComponent == 0 {
		cfg.TargetComponent = kDefaultComponentID
	}
	if cfg.LocalSystem == 0 {
		cfg.LocalSystem = kLocalSystemID
	}
	if logger == nil {
		logger = noopLogger{}
	}
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:      []gomavlib.EndpointConf{endpoint},
		Dialect:        common.Dialect,
		OutVersion:     gomavlib.V2,
		OutSystemID:    cfg.LocalSystem,
		OutComponentID: kLocalComponentID,
	})
	if err != nil {
		return nil, simpleMavftpError("Open %s failed: %v", cfg.Endpoint, err)
	}
	link := &MavlinkLink{
		node:            node,
		targetSystem:    cfg.TargetSystem,
		targetComponent: cfg.TargetComponent,
		localSystem:     cfg.LocalSystem,
		logger:          logger,
		done:            make(chan struct{}),
	}
	go link.readLoop(onReceive)
	return link, nil
}

func (l *MavlinkLink) readLoop(onReceive func([]byte)) {
	defer close(l.done)
	for evt := range l.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventChannelOpen:
			l.logger.Debug("link channel open: %s", e.Channel)
		case *gomavlib.EventChannelClose:
			l.logger.Debug("link channel closed: %s", e.Channel)
		case *gomavlib.EventParseError:
			l.logger.Debug("link parse error: %v", e.Error)
		case *gomavlib.EventFrame:
			msg, ok := e.Message().(*common.MessageFileTransferProtocol)
			if !ok {
				continue
			}
			if e.SystemID() != l.targetSystem || e.ComponentID() != l.targetComponent {
				continue
			}
			if msg.TargetSystem != 0 && msg.TargetSystem != l.localSystem {
				continue
			}
			onReceive(msg.Payload[:])
		}
	}
}

// Send wraps one record into a FILE_TRANSFER_PROTOCOL message.
func (l *MavlinkLink) Send(record []byte) error {
	if len(record) > kRecordSize {
		return simpleMavftpError("Record too long: %d", len(record))
	}
	msg := &common.MessageFileTransferProtocol{
		TargetNetwork:   0,
		TargetSystem:    l.targetSystem,
		TargetComponent: l.targetComponent,
	}
	copy(msg.Payload[:], record)
	select {
	case <-l.done:
		return errLinkClosed
	default:
	}
	if err := l.node.WriteMessageAll(msg); err != nil {
		return simpleMavftpError("Write message failed: %v", err)
	}
	return nil
}

// Close shuts the endpoint down and waits for the read loop to exit.
func (l *MavlinkLink) Close() {
	l.closeOnce.Do(func() {
		l.node.Close()
		<-l.done
	})
}
