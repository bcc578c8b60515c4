//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, format negotiation and memory-mapped streaming.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Format Queries
//
// Query supported formats, frame sizes and frame intervals on an open
// device:
//
//	dev, _ := v4l2.Open("/dev/video0")
//	defer dev.Close()
//	formats, _ := dev.Formats()
//	for _, f := range formats {
//	    sizes, _ := dev.FrameSizes(f.PixelFormat)
//	    for _, s := range sizes {
//	        intervals, _ := dev.FrameIntervals(f.PixelFormat, s.MaxWidth, s.MaxHeight)
//	    }
//	}
//
// # Streaming
//
// Program a format, map buffers and dequeue frames:
//
//	pix, _ := dev.SetFormat(640, 480, v4l2.PixFmtYUYV)
//	_ = dev.SetFrameInterval(v4l2.Fract{Numerator: 1, Denominator: 30})
//	stream, _ := dev.MapBuffers(4)
//	_ = stream.Start()
//	for {
//	    ready, _ := dev.Wait(1000)
//	    if ready&v4l2.ReadyFrame != 0 {
//	        buf, _ := stream.Dequeue()
//	        process(buf.Data[:buf.BytesUsed], pix.BytesPerLine)
//	        _ = stream.Requeue(buf)
//	    }
//	}
//
// # HDMI Signal Detection
//
// For HDMI capture devices, check signal status:
//
//	status := v4l2.GetDVTimings("/dev/video0")
//	if status.State == v4l2.SignalStateLocked {
//	    fmt.Printf("Signal: %dx%d @ %.2f fps\n", status.Width, status.Height, status.FPS)
//	}
package v4l2
