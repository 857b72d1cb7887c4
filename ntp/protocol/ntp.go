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
Package protocol implements the NTP packet and basic functions to work with.
It provides quick and transparent translation between 48 bytes and
simply accessible struct in the most efficient way.
*/
package protocol

import (
	"time"
)

// NanosecondsToUnix is the difference between NTP and Unix epoch in NS
const NanosecondsToUnix = int64(2208988800000000000)

// Time is converting Unix time to sec and frac NTP format.
// Seconds truncate to uint32, so the 2036 era rollover wraps rather than errors.
func Time(t time.Time) (seconds uint32, fractions uint32) {
	nsec := t.UnixNano() + NanosecondsToUnix
	sec := nsec / time.Second.Nanoseconds()
	return uint32(sec), uint32((nsec - sec*time.Second.Nanoseconds()) << 32 / time.Second.Nanoseconds())
}

// Unix is converting NTP seconds and fractions into Unix time
func Unix(seconds, fractions uint32) time.Time {
	secs := int64(seconds) - NanosecondsToUnix/time.Second.Nanoseconds()
	nanos := (int64(fractions) * time.Second.Nanoseconds()) >> 32 // convert fractional to nanos
	return time.Unix(secs, nanos)
}

// Offset uses the formula from RFC #958 to estimate the clock offset between
// the local clock and the server clock. Positive means the server clock is
// ahead of ours.
func Offset(clientTransmitTime, serverReceiveTime, serverTransmitTime, clientReceiveTime time.Time) time.Duration {
	forwardPath := serverReceiveTime.Sub(clientTransmitTime)
	returnPath := serverTransmitTime.Sub(clientReceiveTime)

	return (forwardPath + returnPath) / 2
}

// RoundTripDelay is the total time the exchange spent on the wire: full
// round-trip minus the time the server took to turn the request around.
func RoundTripDelay(clientTransmitTime, serverReceiveTime, serverTransmitTime, clientReceiveTime time.Time) time.Duration {
	roundTrip := clientReceiveTime.Sub(clientTransmitTime)
	serverProcessing := serverTransmitTime.Sub(serverReceiveTime)

	return roundTrip - serverProcessing
}

// CurrentRealTime returns "true" unix time after adjusting for the clock offset
func CurrentRealTime(localTime time.Time, offset time.Duration) time.Time {
	return localTime.Add(offset)
}
