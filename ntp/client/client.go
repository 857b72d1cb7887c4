/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package client implements a one-shot NTP query.
It sends a single client-mode packet, waits for the reply and estimates
the offset between the local clock and the server clock. Retries, peer
selection and clock discipline are up to the caller.
*/
package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	ntp "github.com/clockforge/sntp/ntp/protocol"
	log "github.com/sirupsen/logrus"
)

// DefaultTimeout limits how long Query waits for the reply
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when no reply arrived within the configured timeout
	ErrTimeout = errors.New("timed out waiting for reply")
	// ErrBadReplyFormat is returned when the reply is not a server-mode packet
	ErrBadReplyFormat = errors.New("unexpected reply format")
)

// Config describes a single query
type Config struct {
	Server  string
	Port    int
	Timeout time.Duration
}

// Response is a decoded reply annotated with what the client derived from it
type Response struct {
	Packet *ntp.Packet
	// ServerTime is the server transmit timestamp as host time
	ServerTime time.Time
	// Offset is positive when the server clock is ahead of ours
	Offset time.Duration
	Delay  time.Duration
}

// Query performs one request/response exchange with the server.
// No retries: a timeout comes back as an error wrapping ErrTimeout.
func Query(cfg *Config) (*Response, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))
	conn, err := net.DialTimeout("udp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	clientTransmitTime := time.Now()
	sec, frac := ntp.Time(clientTransmitTime)

	request := &ntp.Packet{
		Settings:   ntp.PacketSettings(ntp.LiNoWarning, 4, ntp.ModeClient),
		TxTimeSec:  sec,
		TxTimeFrac: frac,
	}

	log.Debugf("Sending request to %s: %+v", addr, request)
	if err := binary.Write(conn, binary.BigEndian, request); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	buf := make([]byte, ntp.PacketSizeBytes)
	bbuf, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w from %s after %s", ErrTimeout, addr, timeout)
		}
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}
	// Stamp arrival before we spend time decoding
	clientReceiveTime := time.Now()

	response, err := ntp.BytesToPacket(buf[:bbuf])
	if err != nil {
		return nil, fmt.Errorf("malformed reply from %s: %w", addr, err)
	}
	log.Debugf("Received response: %+v", response)

	if response.Mode() != ntp.ModeServer {
		return nil, fmt.Errorf("%w: mode %d", ErrBadReplyFormat, response.Mode())
	}

	serverReceiveTime := ntp.Unix(response.RxTimeSec, response.RxTimeFrac)
	serverTransmitTime := ntp.Unix(response.TxTimeSec, response.TxTimeFrac)

	return &Response{
		Packet:     response,
		ServerTime: serverTransmitTime,
		Offset:     ntp.Offset(clientTransmitTime, serverReceiveTime, serverTransmitTime, clientReceiveTime),
		Delay:      ntp.RoundTripDelay(clientTransmitTime, serverReceiveTime, serverTransmitTime, clientReceiveTime),
	}, nil
}
