package pretrained

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/go-slotembed/internal/files"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// DefaultTensorName is the tensor read from, and written to, safetensors tables.
const DefaultTensorName = "embeddings"

// TokensMetadataKey is the "__metadata__" entry holding the JSON-encoded list of words of a
// safetensors table.
const TokensMetadataKey = "tokens"

// safetensorsHeader is the JSON header of a safetensors file.
type safetensorsHeader struct {
	Tensors  map[string]*tensorMetadata
	Metadata map[string]any
}

type tensorMetadata struct {
	Dtype       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// parseSafetensorsHeader reads the header of a safetensors file:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
//
// It returns the header and the offset where the tensor data starts.
func parseSafetensorsHeader(r io.Reader) (*safetensorsHeader, int64, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > 100*1024*1024 {
		return nil, 0, errors.Errorf("header size too large: %d bytes", headerSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header JSON")
	}
	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse header JSON")
	}
	header := &safetensorsHeader{
		Tensors:  make(map[string]*tensorMetadata),
		Metadata: make(map[string]any),
	}
	for key, value := range rawHeader {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &header.Metadata); err != nil {
				return nil, 0, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		var tm tensorMetadata
		if err := json.Unmarshal(value, &tm); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to parse tensor metadata for %s", key)
		}
		header.Tensors[key] = &tm
	}
	return header, int64(8 + headerSize), nil
}

// pickTensor returns the name of the embedding tensor: the requested one, DefaultTensorName, or
// the only tensor in the file.
func (h *safetensorsHeader) pickTensor(tensorName string) (string, error) {
	if tensorName != "" {
		if _, found := h.Tensors[tensorName]; !found {
			return "", errors.Errorf("tensor %q not found", tensorName)
		}
		return tensorName, nil
	}
	if _, found := h.Tensors[DefaultTensorName]; found {
		return DefaultTensorName, nil
	}
	names := slices.Sorted(maps.Keys(h.Tensors))
	if len(names) == 1 {
		return names[0], nil
	}
	return "", errors.Errorf("file has tensors %q, select one as the embedding matrix", names)
}

// tokens returns the words listed in the metadata, or nil if there are none.
func (h *safetensorsHeader) tokens() ([]string, error) {
	value, found := h.Metadata[TokensMetadataKey]
	if !found {
		return nil, nil
	}
	encoded, ok := value.(string)
	if !ok {
		return nil, errors.Errorf("metadata %q is a %T, expected a JSON encoded string", TokensMetadataKey, value)
	}
	var tokens []string
	if err := json.Unmarshal([]byte(encoded), &tokens); err != nil {
		return nil, errors.Wrapf(err, "failed to parse metadata %q", TokensMetadataKey)
	}
	return tokens, nil
}

// ReadSafetensors loads a 2D embedding matrix [numWords, dim] from a safetensors file.
//
// Row i is the vector of the i-th word, taken from the "tokens" metadata entry or, if absent,
// from the i-th line of vocabPath. Supported dtypes are F32, F64, F16 and BF16; values are
// converted to float32.
func ReadSafetensors(filePath, tensorName, vocabPath string) (*MapTable, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", filePath)
	}
	header, dataOffset, err := parseSafetensorsHeader(bufio.NewReader(f))
	_ = f.Close()
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing header of %q", filePath)
	}
	tensorName, err = header.pickTensor(tensorName)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %q", filePath)
	}
	meta := header.Tensors[tensorName]
	if len(meta.Shape) != 2 {
		return nil, errors.Errorf("tensor %q in %q has shape %v, expected [num_words, dim]", tensorName, filePath, meta.Shape)
	}
	numWords, dim := meta.Shape[0], meta.Shape[1]

	tokens, err := header.tokens()
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		if vocabPath == "" {
			return nil, errors.Errorf("%q has no %q metadata and no vocabulary file was given", filePath, TokensMetadataKey)
		}
		tokens, err = readLines(vocabPath)
		if err != nil {
			return nil, err
		}
	}
	if len(tokens) != numWords {
		return nil, errors.Errorf("%d words for tensor %q with %d rows", len(tokens), tensorName, numWords)
	}

	dtype, found := dtypes.MapOfNames[strings.ToLower(meta.Dtype)]
	if !found {
		return nil, errors.Errorf("dtype %q not supported", meta.Dtype)
	}
	elementSize := dtype.Size()
	if int64(numWords*dim*elementSize) != meta.DataOffsets[1]-meta.DataOffsets[0] {
		return nil, errors.Errorf("tensor %q of shape %v and dtype %s doesn't match data offsets %v",
			tensorName, meta.Shape, meta.Dtype, meta.DataOffsets)
	}

	reader, err := mmap.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %q", filePath)
	}
	defer func() { _ = reader.Close() }()
	raw := make([]byte, meta.DataOffsets[1]-meta.DataOffsets[0])
	if _, err := reader.ReadAt(raw, dataOffset+meta.DataOffsets[0]); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "failed to read tensor %q", tensorName)
	}
	values, err := decodeFloats(raw, dtype)
	if err != nil {
		return nil, err
	}

	table := NewMapTable(dim)
	for ii, token := range tokens {
		if _, found := table.Vectors[token]; found {
			continue
		}
		table.Vectors[token] = values[ii*dim : (ii+1)*dim : (ii+1)*dim]
	}
	return table, nil
}

// decodeFloats converts little-endian raw values of the given dtype to float32.
func decodeFloats(raw []byte, dtype dtypes.DType) ([]float32, error) {
	n := len(raw) / dtype.Size()
	values := make([]float32, n)
	switch dtype {
	case dtypes.Float32:
		for ii := range values {
			values[ii] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*ii:]))
		}
	case dtypes.Float64:
		for ii := range values {
			values[ii] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[8*ii:])))
		}
	case dtypes.Float16:
		for ii := range values {
			values[ii] = float16ToFloat32(binary.LittleEndian.Uint16(raw[2*ii:]))
		}
	case dtypes.BFloat16:
		for ii := range values {
			values[ii] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[2*ii:])) << 16)
		}
	default:
		return nil, errors.Errorf("dtype %s is not a float type, can't be used as embeddings", dtype)
	}
	return values, nil
}

// float16ToFloat32 converts IEEE 754 half-precision bits to a float32.
func float16ToFloat32(bits uint16) float32 {
	sign := uint32(bits>>15) & 1
	exp := uint32(bits>>10) & 0x1F
	mant := uint32(bits) & 0x3FF

	var f uint32
	switch {
	case exp == 0:
		if mant == 0 {
			f = sign << 31
		} else {
			// Subnormal: normalize.
			exp = 1
			for mant&0x400 == 0 {
				mant <<= 1
				exp--
			}
			mant &= 0x3FF
			f = (sign << 31) | ((exp + 127 - 15) << 23) | (mant << 13)
		}
	case exp == 0x1F:
		f = (sign << 31) | (0xFF << 23) | (mant << 13)
	default:
		f = (sign << 31) | ((exp + 127 - 15) << 23) | (mant << 13)
	}
	return math.Float32frombits(f)
}

func readLines(filePath string) ([]string, error) {
	data, err := os.ReadFile(files.ExpandHome(filePath))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read vocabulary file %q", filePath)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for ii, line := range lines {
		lines[ii] = strings.TrimRight(line, "\r")
	}
	return lines, nil
}

// WriteSafetensors writes an embedding matrix with rows = len(tokens) and the given dim, as a
// F32 tensor named tensorName (DefaultTensorName if empty). The tokens are stored in the
// "tokens" metadata entry, so ReadSafetensors can load the file back without a vocabulary file.
func WriteSafetensors(filePath string, tokens []string, data []float32, dim int, tensorName string) error {
	if tensorName == "" {
		tensorName = DefaultTensorName
	}
	if len(data) != len(tokens)*dim {
		return errors.Errorf("%d values for %d tokens of dimension %d", len(data), len(tokens), dim)
	}
	encodedTokens, err := json.Marshal(tokens)
	if err != nil {
		return errors.Wrap(err, "failed to encode tokens")
	}
	dataSize := int64(len(data) * 4)
	header := map[string]any{
		"__metadata__": map[string]string{TokensMetadataKey: string(encodedTokens)},
		tensorName: tensorMetadata{
			Dtype:       "F32",
			Shape:       []int{len(tokens), dim},
			DataOffsets: [2]int64{0, dataSize},
		},
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to encode safetensors header")
	}
	// Tensor data is aligned to 8 bytes.
	if pad := len(headerBytes) % 8; pad != 0 {
		headerBytes = append(headerBytes, []byte(strings.Repeat(" ", 8-pad))...)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}
	w := bufio.NewWriter(f)
	err = binary.Write(w, binary.LittleEndian, uint64(len(headerBytes)))
	if err == nil {
		_, err = w.Write(headerBytes)
	}
	if err == nil {
		err = binary.Write(w, binary.LittleEndian, data)
	}
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write %q", filePath)
	}
	return nil
}
