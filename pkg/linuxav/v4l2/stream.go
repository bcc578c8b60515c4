//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrEventsNotSupported is returned when the device doesn't support V4L2 events.
var ErrEventsNotSupported = unix.ENOTSUP

// Buffer is a dequeued capture buffer. Data aliases driver memory and is
// valid until the buffer is requeued.
type Buffer struct {
	Index         int
	Data          []byte
	Sequence      uint32
	TimestampSec  int64
	TimestampUsec int64
}

// Stream owns the memory-mapped buffers of a device.
type Stream struct {
	dev       *Device
	bufs      [][]byte
	streaming bool
}

// MapBuffers requests count mmap buffers, maps them and queues them all.
// The driver may grant fewer buffers than requested.
func (d *Device) MapBuffers(count int) (*Stream, error) {
	req := v4l2Requestbuffers{
		count:  uint32(count),
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return nil, fmt.Errorf("request %d buffers: %w", count, gone(err))
	}
	if req.count == 0 {
		return nil, errors.New("driver granted no buffers")
	}

	s := &Stream{dev: d}
	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{index: i, typ: bufTypeVideoCapture, memory: memoryMmap}
		if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			s.unmap()
			return nil, fmt.Errorf("query buffer %d: %w", i, gone(err))
		}

		data, err := unix.Mmap(d.fd, int64(buf.offset), int(buf.length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			s.unmap()
			return nil, fmt.Errorf("map buffer %d: %w", i, err)
		}
		s.bufs = append(s.bufs, data)
	}

	for i := range s.bufs {
		if err := s.queue(i); err != nil {
			s.unmap()
			return nil, err
		}
	}
	return s, nil
}

// Len returns the number of mapped buffers.
func (s *Stream) Len() int { return len(s.bufs) }

// Start turns streaming on.
func (s *Stream) Start() error {
	typ := uint32(bufTypeVideoCapture)
	if err := ioctl(s.dev.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("stream on: %w", gone(err))
	}
	s.streaming = true
	return nil
}

// Stop turns streaming off. Every buffer returns to the application.
func (s *Stream) Stop() error {
	if !s.streaming {
		return nil
	}
	s.streaming = false
	typ := uint32(bufTypeVideoCapture)
	if err := ioctl(s.dev.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("stream off: %w", gone(err))
	}
	return nil
}

// Dequeue takes a filled buffer from the driver. It returns false when
// none is ready.
func (s *Stream) Dequeue() (Buffer, bool, error) {
	buf := v4l2Buffer{typ: bufTypeVideoCapture, memory: memoryMmap}
	if err := ioctl(s.dev.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return Buffer{}, false, nil
		}
		return Buffer{}, false, fmt.Errorf("dequeue buffer: %w", gone(err))
	}

	i := int(buf.index)
	if i >= len(s.bufs) {
		return Buffer{}, false, fmt.Errorf("driver returned unknown buffer %d", i)
	}
	used := int(buf.bytesused)
	if used == 0 || used > len(s.bufs[i]) {
		used = len(s.bufs[i])
	}
	sec, usec := buf.timeval()
	return Buffer{
		Index:         i,
		Data:          s.bufs[i][:used],
		Sequence:      buf.sequence,
		TimestampSec:  sec,
		TimestampUsec: usec,
	}, true, nil
}

// Requeue hands a dequeued buffer back to the driver.
func (s *Stream) Requeue(b Buffer) error {
	return s.queue(b.Index)
}

func (s *Stream) queue(i int) error {
	buf := v4l2Buffer{index: uint32(i), typ: bufTypeVideoCapture, memory: memoryMmap}
	if err := ioctl(s.dev.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("queue buffer %d: %w", i, gone(err))
	}
	return nil
}

// Close stops streaming, unmaps every buffer and frees them in the driver.
func (s *Stream) Close() error {
	err := s.Stop()
	s.unmap()
	return err
}

func (s *Stream) unmap() {
	for _, b := range s.bufs {
		_ = unix.Munmap(b)
	}
	s.bufs = nil

	req := v4l2Requestbuffers{typ: bufTypeVideoCapture, memory: memoryMmap}
	_ = ioctl(s.dev.fd, vidiocReqbufs, unsafe.Pointer(&req))
}

// SubscribeSourceChange subscribes to source change events, which are
// then reported by Wait as ReadyEvent.
func (d *Device) SubscribeSourceChange() error {
	sub := v4l2EventSubscription{typ: eventSourceChange}
	if err := ioctl(d.fd, vidiocSubscribeEvent, unsafe.Pointer(&sub)); err != nil {
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) {
			return ErrEventsNotSupported
		}
		return fmt.Errorf("subscribe source change: %w", gone(err))
	}
	return nil
}

// UnsubscribeSourceChange drops the subscription.
func (d *Device) UnsubscribeSourceChange() error {
	sub := v4l2EventSubscription{typ: eventSourceChange}
	return ioctl(d.fd, vidiocUnsubscribeEvent, unsafe.Pointer(&sub))
}

// DequeueSourceChange takes one pending event. It returns the source
// change flags, and false when the event was of another type or none was
// pending.
func (d *Device) DequeueSourceChange() (uint32, bool, error) {
	ev := v4l2Event{}
	if err := ioctl(d.fd, vidiocDqevent, unsafe.Pointer(&ev)); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EAGAIN) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("dequeue event: %w", gone(err))
	}
	if ev.typ != eventSourceChange {
		return 0, false, nil
	}
	return ev.srcChangeChanges(), true, nil
}
