package meta

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const xmpScanWindow = 4 << 20

// ErrNoXMP means the file carries no drone XMP data. Most videos don't, so
// the extractor treats it like a missing sidecar.
var ErrNoXMP = errors.New("no drone XMP data")

var (
	xmpOpen  = []byte("<x:xmpmeta")
	xmpClose = []byte("</x:xmpmeta>")
)

// XMPData holds the DJI flight fields found in an embedded XMP packet.
// Keys are lowercase field names without namespace ("relativealtitude").
type XMPData struct {
	Fields map[string]string
}

// Float returns the numeric value of the first present key
func (x *XMPData) Float(keys ...string) (float64, bool) {
	if x == nil {
		return 0, false
	}
	for _, k := range keys {
		if v, ok := x.Fields[k]; ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err == nil && !math.IsNaN(f) {
				return f, true
			}
		}
	}
	return 0, false
}

// Speed returns the ground speed from the FlightX/Y/Z components
func (x *XMPData) Speed() (float64, bool) {
	vx, okx := x.Float("flightxspeed")
	vy, oky := x.Float("flightyspeed")
	vz, _ := x.Float("flightzspeed")
	if !okx && !oky {
		return 0, false
	}
	return math.Sqrt(vx*vx + vy*vy + vz*vz), true
}

// ReadXMP scans the head and tail of a media file for an XMP packet and
// parses it. Files without a packet return ErrNoXMP.
func ReadXMP(path string) (*XMPData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	packet, err := findXMPPacket(f, info.Size())
	if err != nil {
		return nil, err
	}
	return ParseXMP(packet)
}

func findXMPPacket(r io.ReaderAt, size int64) ([]byte, error) {
	windows := [][2]int64{{0, min(size, xmpScanWindow)}}
	if size > xmpScanWindow {
		start := max(size-xmpScanWindow, xmpScanWindow)
		windows = append(windows, [2]int64{start, size - start})
	}

	for _, w := range windows {
		buf := make([]byte, w[1])
		n, err := r.ReadAt(buf, w[0])
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		buf = buf[:n]

		start := bytes.Index(buf, xmpOpen)
		if start < 0 {
			continue
		}
		end := bytes.Index(buf[start:], xmpClose)
		if end < 0 {
			continue
		}
		return buf[start : start+end+len(xmpClose)], nil
	}

	return nil, fmt.Errorf("%w: no XMP packet found", ErrNoXMP)
}

// ParseXMP extracts DJI and TIFF fields from an XMP packet. DJI writes
// fields either as rdf:Description attributes or as child elements, so
// both forms are read.
func ParseXMP(packet []byte) (*XMPData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(packet))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XMP: %w", err)
	}

	data := &XMPData{Fields: make(map[string]string)}
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		for _, attr := range node.Attr {
			if key, ok := xmpFieldName(attr.Key); ok {
				data.Fields[key] = strings.TrimSpace(attr.Val)
			}
		}
		if key, ok := xmpFieldName(node.Data); ok && s.Children().Length() == 0 {
			if text := strings.TrimSpace(s.Text()); text != "" {
				data.Fields[key] = text
			}
		}
	})

	if len(data.Fields) == 0 {
		return nil, fmt.Errorf("%w: XMP packet has no drone fields", ErrNoXMP)
	}
	return data, nil
}

func xmpFieldName(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, prefix := range []string{"drone-dji:", "drone:", "tiff:"} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix), true
		}
	}
	return "", false
}
