package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// NewFromFile returns a pointcloud read in from the given file.
func NewFromFile(fn string, logger golog.Logger) (PointCloud, error) {
	switch filepath.Ext(fn) {
	case ".ply":
		f, err := os.Open(fn) //nolint:gosec
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open %q", fn)
		}
		defer utils.UncheckedErrorFunc(f.Close)
		logger.Debugf("reading point cloud from %q", fn)
		return ReadPLY(f)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// WriteToFile writes the point cloud to the given file, dispatched by
// extension.
func WriteToFile(fn string, cloud PointCloud) (err error) {
	if filepath.Ext(fn) != ".ply" {
		return errors.Errorf("do not know how to write file %q", fn)
	}
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err = WritePLY(cloud, w, true); err != nil {
		return err
	}
	return w.Flush()
}

type plyFormat int

const (
	plyAscii plyFormat = iota
	plyBinaryLittle
)

var plyPropertySizes = map[string]int{
	"char": 1, "uchar": 1, "int8": 1, "uint8": 1,
	"short": 2, "ushort": 2, "int16": 2, "uint16": 2,
	"int": 4, "uint": 4, "int32": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

type plyProperty struct {
	name string
	typ  string
	// list properties carry a count type and item type instead.
	isList   bool
	countTyp string
	itemTyp  string
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyHeader struct {
	format   plyFormat
	elements []plyElement
}

func parsePLYHeader(in *bufio.Reader) (plyHeader, error) {
	var header plyHeader
	magic, err := in.ReadString('\n')
	if err != nil {
		return header, err
	}
	if strings.TrimSpace(magic) != "ply" {
		return header, errors.New("not a ply file")
	}
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return header, errors.Wrap(err, "unexpected end of ply header")
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		switch tokens[0] {
		case "comment", "obj_info":
		case "format":
			if len(tokens) < 2 {
				return header, errors.New("malformed format line")
			}
			switch tokens[1] {
			case "ascii":
				header.format = plyAscii
			case "binary_little_endian":
				header.format = plyBinaryLittle
			default:
				return header, errors.Errorf("unsupported ply format %q", tokens[1])
			}
		case "element":
			if len(tokens) != 3 {
				return header, errors.New("malformed element line")
			}
			count, err := strconv.Atoi(tokens[2])
			if err != nil {
				return header, errors.Wrapf(err, "invalid element count %q", tokens[2])
			}
			header.elements = append(header.elements, plyElement{name: tokens[1], count: count})
		case "property":
			if len(header.elements) == 0 {
				return header, errors.New("property before any element")
			}
			el := &header.elements[len(header.elements)-1]
			switch {
			case len(tokens) == 3:
				if _, ok := plyPropertySizes[tokens[1]]; !ok {
					return header, errors.Errorf("unsupported property type %q", tokens[1])
				}
				el.props = append(el.props, plyProperty{name: tokens[2], typ: tokens[1]})
			case len(tokens) == 5 && tokens[1] == "list":
				el.props = append(el.props, plyProperty{
					name: tokens[4], isList: true, countTyp: tokens[2], itemTyp: tokens[3],
				})
			default:
				return header, errors.Errorf("malformed property line %q", strings.TrimSpace(line))
			}
		case "end_header":
			return header, nil
		default:
			return header, errors.Errorf("unexpected header line %q", strings.TrimSpace(line))
		}
	}
}

// ReadPLY reads a PLY point cloud (ascii or binary little endian) keeping
// positions, colors, and integer labels. Non-vertex elements are skipped.
func ReadPLY(inRaw io.Reader) (PointCloud, error) {
	in := bufio.NewReader(inRaw)
	header, err := parsePLYHeader(in)
	if err != nil {
		return nil, err
	}
	pc := New()
	for _, el := range header.elements {
		if el.name == "vertex" {
			pc = NewWithPrealloc(el.count)
			if err := readPLYVertices(in, header.format, el, pc); err != nil {
				return nil, err
			}
			continue
		}
		if err := skipPLYElement(in, header.format, el); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func readBinaryScalar(in *bufio.Reader, typ string) (float64, error) {
	size, ok := plyPropertySizes[typ]
	if !ok {
		return 0, errors.Errorf("unsupported property type %q", typ)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(in, buf); err != nil {
		return 0, err
	}
	switch typ {
	case "float", "float32":
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))), nil
	case "double", "float64":
		return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
	case "char", "int8":
		return float64(int8(buf[0])), nil
	case "uchar", "uint8":
		return float64(buf[0]), nil
	case "short", "int16":
		return float64(int16(binary.LittleEndian.Uint16(buf))), nil
	case "ushort", "uint16":
		return float64(binary.LittleEndian.Uint16(buf)), nil
	case "int", "int32":
		return float64(int32(binary.LittleEndian.Uint32(buf))), nil
	case "uint", "uint32":
		return float64(binary.LittleEndian.Uint32(buf)), nil
	default:
		return 0, errors.Errorf("unsupported property type %q", typ)
	}
}

func readPLYVertices(in *bufio.Reader, format plyFormat, el plyElement, pc PointCloud) error {
	var hasColor, hasLabel bool
	for _, prop := range el.props {
		switch prop.name {
		case "red", "green", "blue":
			hasColor = true
		case "label":
			hasLabel = true
		}
	}

	for i := 0; i < el.count; i++ {
		fields := map[string]float64{}
		if format == plyAscii {
			line, err := in.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			tokens := strings.Fields(line)
			if len(tokens) != len(el.props) {
				return errors.Errorf("vertex %d has %d fields, want %d", i, len(tokens), len(el.props))
			}
			for j, prop := range el.props {
				v, err := strconv.ParseFloat(tokens[j], 64)
				if err != nil {
					return errors.Wrapf(err, "vertex %d field %q", i, prop.name)
				}
				fields[prop.name] = v
			}
		} else {
			for _, prop := range el.props {
				if prop.isList {
					return errors.New("list property on vertex element not supported")
				}
				v, err := readBinaryScalar(in, prop.typ)
				if err != nil {
					return errors.Wrapf(err, "vertex %d field %q", i, prop.name)
				}
				fields[prop.name] = v
			}
		}

		pos := r3.Vector{X: fields["x"], Y: fields["y"], Z: fields["z"]}
		var d Data
		if hasColor {
			d = NewColoredData(color.NRGBA{
				R: uint8(fields["red"]), G: uint8(fields["green"]), B: uint8(fields["blue"]), A: 255,
			})
		}
		if hasLabel {
			if d == nil {
				d = NewBasicData()
			}
			d.SetValue(int(fields["label"]))
		}
		if err := pc.Set(pos, d); err != nil {
			return err
		}
	}
	return nil
}

func skipPLYElement(in *bufio.Reader, format plyFormat, el plyElement) error {
	for i := 0; i < el.count; i++ {
		if format == plyAscii {
			if _, err := in.ReadString('\n'); err != nil {
				return err
			}
			continue
		}
		for _, prop := range el.props {
			if !prop.isList {
				if _, err := readBinaryScalar(in, prop.typ); err != nil {
					return err
				}
				continue
			}
			count, err := readBinaryScalar(in, prop.countTyp)
			if err != nil {
				return err
			}
			for j := 0; j < int(count); j++ {
				if _, err := readBinaryScalar(in, prop.itemTyp); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// WritePLY writes the cloud as a PLY file carrying position plus, when
// present in the cloud, color and label properties.
func WritePLY(cloud PointCloud, out io.Writer, binaryMode bool) error {
	meta := cloud.MetaData()
	format := "ascii"
	if binaryMode {
		format = "binary_little_endian"
	}
	header := fmt.Sprintf("ply\nformat %s 1.0\nelement vertex %d\n"+
		"property float x\nproperty float y\nproperty float z\n", format, cloud.Size())
	if meta.HasColor {
		header += "property uchar red\nproperty uchar green\nproperty uchar blue\n"
	}
	if meta.HasValue {
		header += "property uint label\n"
	}
	header += "end_header\n"
	if _, err := io.WriteString(out, header); err != nil {
		return err
	}

	var err error
	cloud.Iterate(func(pos r3.Vector, d Data) bool {
		if binaryMode {
			buf := make([]byte, 0, 16)
			buf = appendFloat32(buf, float32(pos.X))
			buf = appendFloat32(buf, float32(pos.Y))
			buf = appendFloat32(buf, float32(pos.Z))
			if meta.HasColor {
				var r, g, b uint8
				if d != nil && d.HasColor() {
					r, g, b = d.RGB255()
				}
				buf = append(buf, r, g, b)
			}
			if meta.HasValue {
				var v int
				if d != nil && d.HasValue() {
					v = d.Value()
				}
				var lbuf [4]byte
				binary.LittleEndian.PutUint32(lbuf[:], uint32(v))
				buf = append(buf, lbuf[:]...)
			}
			_, err = out.Write(buf)
		} else {
			line := fmt.Sprintf("%f %f %f", pos.X, pos.Y, pos.Z)
			if meta.HasColor {
				var r, g, b uint8
				if d != nil && d.HasColor() {
					r, g, b = d.RGB255()
				}
				line += fmt.Sprintf(" %d %d %d", r, g, b)
			}
			if meta.HasValue {
				var v int
				if d != nil && d.HasValue() {
					v = d.Value()
				}
				line += fmt.Sprintf(" %d", v)
			}
			_, err = io.WriteString(out, line+"\n")
		}
		return err == nil
	})
	return err
}

func appendFloat32(buf []byte, f float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	return append(buf, b[:]...)
}
