package meta

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const attributeXMP = `<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about="DJI Meta Data"
    xmlns:tiff="http://ns.adobe.com/tiff/1.0/"
    xmlns:drone-dji="http://www.dji.com/drone-dji/1.0/"
    tiff:Make="DJI"
    tiff:Model="FC3582"
    drone-dji:GpsLatitude="51.500123"
    drone-dji:GpsLongitude="-0.120456"
    drone-dji:AbsoluteAltitude="+95.10"
    drone-dji:RelativeAltitude="+30.00"
    drone-dji:GimbalPitchDegree="-90.00"
    drone-dji:FlightXSpeed="+3.00"
    drone-dji:FlightYSpeed="+4.00"
    drone-dji:FlightZSpeed="+0.00">
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>`

const elementXMP = `<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description xmlns:drone-dji="http://www.dji.com/drone-dji/1.0/">
   <drone-dji:RelativeAltitude>+120.5</drone-dji:RelativeAltitude>
   <drone-dji:GimbalPitchDegree>-45.0</drone-dji:GimbalPitchDegree>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>`

func TestParseXMP_Attributes(t *testing.T) {
	data, err := ParseXMP([]byte(attributeXMP))
	if err != nil {
		t.Fatalf("ParseXMP failed: %v", err)
	}

	if data.Fields["make"] != "DJI" {
		t.Errorf("make = %q, want DJI", data.Fields["make"])
	}
	if v, ok := data.Float("relativealtitude"); !ok || v != 30 {
		t.Errorf("relativealtitude = %v,%v, want 30", v, ok)
	}
	if v, ok := data.Float("gimbalpitchdegree"); !ok || v != -90 {
		t.Errorf("gimbalpitchdegree = %v,%v, want -90", v, ok)
	}
	speed, ok := data.Speed()
	if !ok || math.Abs(speed-5) > 1e-9 {
		t.Errorf("Speed = %v,%v, want 5", speed, ok)
	}
}

func TestParseXMP_Elements(t *testing.T) {
	data, err := ParseXMP([]byte(elementXMP))
	if err != nil {
		t.Fatalf("ParseXMP failed: %v", err)
	}

	if v, ok := data.Float("relativealtitude"); !ok || v != 120.5 {
		t.Errorf("relativealtitude = %v,%v, want 120.5", v, ok)
	}
	if _, ok := data.Speed(); ok {
		t.Error("expected no speed without flight speed fields")
	}
}

func TestParseXMP_NoDroneFields(t *testing.T) {
	packet := `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF><rdf:Description dc:title="x"/></rdf:RDF></x:xmpmeta>`
	if _, err := ParseXMP([]byte(packet)); !errors.Is(err, ErrNoXMP) {
		t.Errorf("expected ErrNoXMP for packet without drone fields, got %v", err)
	}
}

func TestReadXMP_EmbeddedPacket(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(bytes.Repeat([]byte{0x00, 0x01}, 1024))
	buf.WriteString(attributeXMP)
	buf.Write(bytes.Repeat([]byte{0xff}, 512))

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := ReadXMP(path)
	if err != nil {
		t.Fatalf("ReadXMP failed: %v", err)
	}
	if data.Fields["model"] != "FC3582" {
		t.Errorf("model = %q, want FC3582", data.Fields["model"])
	}
}

func TestReadXMP_NoPacket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("ftypisom plain mp4 bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadXMP(path); !errors.Is(err, ErrNoXMP) {
		t.Errorf("expected ErrNoXMP when file has no XMP packet, got %v", err)
	}
}
