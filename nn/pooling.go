package nn

import (
	"gorgonia.org/tensor"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// AvgPool3D averages non-overlapping (pH, pW, pD) windows. Remainder voxels
// beyond the last full window are dropped, as with valid padding.
type AvgPool3D struct {
	Pool [3]int

	inShape tensor.Shape
}

func NewAvgPool3D(pool [3]int) *AvgPool3D {
	return &AvgPool3D{Pool: pool}
}

func (p *AvgPool3D) Params() []*Param { return nil }

func (p *AvgPool3D) Forward(x *tensor.Dense, training bool) (*tensor.Dense, error) {
	s := x.Shape()
	if len(s) != 5 {
		return nil, verrors.NewDimensionError("AvgPool3D.Forward", 5, len(s), 0)
	}
	n, h, w, d, c := s[0], s[1], s[2], s[3], s[4]
	pH, pW, pD := p.Pool[0], p.Pool[1], p.Pool[2]
	if pH <= 0 || pW <= 0 || pD <= 0 || pH > h || pW > w || pD > d {
		return nil, verrors.NewValueError("AvgPool3D.Forward", "pool size exceeds input extent")
	}
	oH, oW, oD := h/pH, w/pW, d/pD

	in := f64(x)
	out := make([]float64, n*oH*oW*oD*c)
	window := float64(pH * pW * pD)

	inSH, inSW, inSD := w*d*c, d*c, c
	outSH, outSW, outSD := oW*oD*c, oD*c, c

	for bi := 0; bi < n; bi++ {
		inBase := bi * h * inSH
		outBase := bi * oH * outSH
		for oh := 0; oh < oH; oh++ {
			for ow := 0; ow < oW; ow++ {
				for od := 0; od < oD; od++ {
					dst := out[outBase+oh*outSH+ow*outSW+od*outSD:]
					for ih := oh * pH; ih < (oh+1)*pH; ih++ {
						for iw := ow * pW; iw < (ow+1)*pW; iw++ {
							for id := od * pD; id < (od+1)*pD; id++ {
								src := in[inBase+ih*inSH+iw*inSW+id*inSD:]
								for k := 0; k < c; k++ {
									dst[k] += src[k]
								}
							}
						}
					}
					for k := 0; k < c; k++ {
						dst[k] /= window
					}
				}
			}
		}
	}

	p.inShape = s.Clone()
	return tensor.New(tensor.WithShape(n, oH, oW, oD, c), tensor.WithBacking(out)), nil
}

func (p *AvgPool3D) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if p.inShape == nil {
		return nil, verrors.NewModelError("AvgPool3D.Backward", "no cached forward pass", nil)
	}
	n, h, w, d, c := p.inShape[0], p.inShape[1], p.inShape[2], p.inShape[3], p.inShape[4]
	pH, pW, pD := p.Pool[0], p.Pool[1], p.Pool[2]
	oH, oW, oD := h/pH, w/pW, d/pD

	dy := f64(grad)
	dx := make([]float64, n*h*w*d*c)
	window := float64(pH * pW * pD)

	inSH, inSW, inSD := w*d*c, d*c, c
	outSH, outSW, outSD := oW*oD*c, oD*c, c

	for bi := 0; bi < n; bi++ {
		inBase := bi * h * inSH
		outBase := bi * oH * outSH
		for oh := 0; oh < oH; oh++ {
			for ow := 0; ow < oW; ow++ {
				for od := 0; od < oD; od++ {
					g := dy[outBase+oh*outSH+ow*outSW+od*outSD:]
					for ih := oh * pH; ih < (oh+1)*pH; ih++ {
						for iw := ow * pW; iw < (ow+1)*pW; iw++ {
							for id := od * pD; id < (od+1)*pD; id++ {
								dst := dx[inBase+ih*inSH+iw*inSW+id*inSD:]
								for k := 0; k < c; k++ {
									dst[k] += g[k] / window
								}
							}
						}
					}
				}
			}
		}
	}

	return tensor.New(tensor.WithShape(n, h, w, d, c), tensor.WithBacking(dx)), nil
}
