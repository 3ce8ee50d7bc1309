package filters

import (
	"fmt"

	"github.com/wudi/pdfoutline/ir/raw"
)

type predictorParams struct {
	predictor int
	colors    int
	bpc       int
	columns   int
}

func predictorParamsFrom(params raw.Dictionary) predictorParams {
	p := predictorParams{predictor: 1, colors: 1, bpc: 8, columns: 1}
	if params == nil {
		return p
	}
	get := func(key string, dst *int) {
		if o, ok := params.Get(raw.NameObj{Val: key}); ok {
			if n, ok := o.(raw.Number); ok && n.Int() > 0 {
				*dst = int(n.Int())
			}
		}
	}
	get("Predictor", &p.predictor)
	get("Colors", &p.colors)
	get("BitsPerComponent", &p.bpc)
	get("Columns", &p.columns)
	return p
}

// applyPredictor reverses TIFF (2) and PNG (10-15) prediction.
func applyPredictor(data []byte, p predictorParams) ([]byte, error) {
	switch {
	case p.predictor <= 1:
		return data, nil
	case p.predictor == 2:
		return tiffPredict(data, p)
	case p.predictor >= 10:
		return pngPredict(data, p)
	default:
		return nil, fmt.Errorf("unsupported predictor %d", p.predictor)
	}
}

func (p predictorParams) rowBytes() int {
	return (p.colors*p.bpc*p.columns + 7) / 8
}

func (p predictorParams) pixelBytes() int {
	bpp := (p.colors*p.bpc + 7) / 8
	if bpp < 1 {
		bpp = 1
	}
	return bpp
}

func pngPredict(data []byte, p predictorParams) ([]byte, error) {
	rowLen := p.rowBytes()
	bpp := p.pixelBytes()
	stride := rowLen + 1
	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for off := 0; off < len(data); off += stride {
		end := off + stride
		if end > len(data) {
			end = len(data)
		}
		filter := data[off]
		for i := range cur {
			cur[i] = 0
		}
		copy(cur, data[off+1:end])
		switch filter {
		case 0:
		case 1:
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2:
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3:
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4:
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("png predictor: bad row filter %d", filter)
		}
		out = append(out, cur[:end-off-1]...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func tiffPredict(data []byte, p predictorParams) ([]byte, error) {
	if p.bpc != 8 {
		return nil, fmt.Errorf("tiff predictor: %d bits per component not supported", p.bpc)
	}
	rowLen := p.rowBytes()
	out := make([]byte, len(data))
	copy(out, data)
	for row := 0; row < len(out); row += rowLen {
		end := row + rowLen
		if end > len(out) {
			end = len(out)
		}
		for i := row + p.colors; i < end; i++ {
			out[i] += out[i-p.colors]
		}
	}
	return out, nil
}
