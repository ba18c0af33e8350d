package imu

import (
	"encoding/binary"
	"fmt"
)

// Wire format of the strap firmware's BLE notification, little-endian:
//
//	uint32 seq_id
//	3 x {
//	    uint16 time_offset   // ms from session start
//	    int16  acc_A[3]
//	    int16  gyro_A[3]
//	    int16  acc_B[3]
//	    int16  gyro_B[3]
//	}
const (
	wireSampleSize   = 2 + 4*3*2 // time_offset + four int16 vectors
	SamplesPerPacket = 3
	PacketSize       = 4 + SamplesPerPacket*wireSampleSize
)

// GyroScaleDegS converts a raw int16 gyro reading to deg/s for the +-2000
// dps full-scale range the firmware configures.
const GyroScaleDegS = 2000.0 / 32768.0

// timeOffsetSpanMS is the range of the 16-bit sample clock before it wraps.
const timeOffsetSpanMS = 1 << 16

// PacketSample is one raw dual-IMU reading inside a packet.
type PacketSample struct {
	TimeOffsetMS uint16
	AccA         [3]int16
	GyroA        [3]int16
	AccB         [3]int16
	GyroB        [3]int16
}

// Packet is one decoded BLE notification: a sequence number for drop
// detection plus three samples.
type Packet struct {
	SeqID   uint32
	Samples [SamplesPerPacket]PacketSample
}

// DecodePacket parses one wire packet. Short or oversized buffers are
// rejected at this boundary so malformed records never reach the filter.
func DecodePacket(buf []byte) (Packet, error) {
	var p Packet
	if len(buf) != PacketSize {
		return p, fmt.Errorf("imu: packet size %d, want %d", len(buf), PacketSize)
	}

	p.SeqID = binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	for i := 0; i < SamplesPerPacket; i++ {
		s := &p.Samples[i]
		s.TimeOffsetMS = binary.LittleEndian.Uint16(buf[off:])
		off += 2
		for _, vec := range []*[3]int16{&s.AccA, &s.GyroA, &s.AccB, &s.GyroB} {
			for ax := 0; ax < 3; ax++ {
				vec[ax] = int16(binary.LittleEndian.Uint16(buf[off:]))
				off += 2
			}
		}
	}
	return p, nil
}

// Decoder turns a stream of wire packets into relative-rate samples. It
// tracks the packet sequence to count drops and unwraps the 16-bit sample
// clock into a monotonic session-relative timestamp.
type Decoder struct {
	// Axis is the gyro axis aligned with the flexion plane.
	Axis Axis
	// GyroScale converts raw readings to deg/s. Zero means GyroScaleDegS.
	GyroScale float64

	// Dropped counts packets lost to sequence gaps.
	Dropped int

	haveSeq    bool
	lastSeq    uint32
	rollovers  int
	lastOffset uint16
}

// NewDecoder returns a Decoder for the given flexion axis.
func NewDecoder(axis Axis) *Decoder {
	return &Decoder{Axis: axis, GyroScale: GyroScaleDegS}
}

// Feed decodes one wire packet and appends its samples. Sequence gaps are
// recorded in Dropped but do not fail the stream; a genuinely malformed
// packet does.
func (d *Decoder) Feed(buf []byte) ([]Sample, error) {
	p, err := DecodePacket(buf)
	if err != nil {
		return nil, err
	}

	if d.haveSeq && p.SeqID > d.lastSeq+1 {
		d.Dropped += int(p.SeqID - d.lastSeq - 1)
	}
	d.haveSeq = true
	d.lastSeq = p.SeqID

	scale := d.GyroScale
	if scale == 0 {
		scale = GyroScaleDegS
	}

	out := make([]Sample, 0, SamplesPerPacket)
	for _, s := range p.Samples {
		// Unwrap the 16-bit millisecond clock.
		if s.TimeOffsetMS < d.lastOffset {
			d.rollovers++
		}
		d.lastOffset = s.TimeOffsetMS

		gyroA := [3]float64{
			float64(s.GyroA[0]) * scale,
			float64(s.GyroA[1]) * scale,
			float64(s.GyroA[2]) * scale,
		}
		gyroB := [3]float64{
			float64(s.GyroB[0]) * scale,
			float64(s.GyroB[1]) * scale,
			float64(s.GyroB[2]) * scale,
		}

		out = append(out, Sample{
			TimestampMS: float64(d.rollovers)*timeOffsetSpanMS + float64(s.TimeOffsetMS),
			RateDegS:    RelativeRate(gyroA, gyroB, d.Axis),
		})
	}
	return out, nil
}
