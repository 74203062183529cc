package nn

import (
	"math/rand/v2"
	"sync"

	"gorgonia.org/tensor"

	"github.com/YuminosukeSato/voxnet/core/parallel"
	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// Conv3D is a 3D convolution with "same" padding and a uniform stride on the
// three spatial axes. Weights are laid out (kH, kW, kD, inC, outC).
type Conv3D struct {
	InChannels  int
	OutChannels int
	Kernel      [3]int
	Stride      int

	w *Param
	b *Param

	x *tensor.Dense // cached forward input
}

// NewConv3D builds a convolution layer with He-initialized weights and zero
// bias.
func NewConv3D(name string, in, out int, kernel [3]int, stride int, rng *rand.Rand) *Conv3D {
	c := &Conv3D{
		InChannels:  in,
		OutChannels: out,
		Kernel:      kernel,
		Stride:      stride,
		w:           newParam(name+"/w", kernel[0], kernel[1], kernel[2], in, out),
		b:           newParam(name+"/b", out),
	}
	fanIn := kernel[0] * kernel[1] * kernel[2] * in
	heNormal(rng, fanIn, c.w)
	return c
}

func (c *Conv3D) Params() []*Param {
	return []*Param{c.w, c.b}
}

// outExtent returns the output size and leading pad for one spatial axis
// under "same" padding: ceil(in/stride) outputs.
func outExtent(in, kernel, stride int) (out, padBeg int) {
	out = (in + stride - 1) / stride
	padTotal := (out-1)*stride + kernel - in
	if padTotal < 0 {
		padTotal = 0
	}
	return out, padTotal / 2
}

func (c *Conv3D) Forward(x *tensor.Dense, training bool) (*tensor.Dense, error) {
	s := x.Shape()
	if len(s) != 5 {
		return nil, verrors.NewDimensionError("Conv3D.Forward", 5, len(s), 0)
	}
	n, h, w, d, ch := s[0], s[1], s[2], s[3], s[4]
	if ch != c.InChannels {
		return nil, verrors.NewDimensionError("Conv3D.Forward", c.InChannels, ch, 4)
	}

	kH, kW, kD := c.Kernel[0], c.Kernel[1], c.Kernel[2]
	oH, pH := outExtent(h, kH, c.Stride)
	oW, pW := outExtent(w, kW, c.Stride)
	oD, pD := outExtent(d, kD, c.Stride)
	oC := c.OutChannels

	in := f64(x)
	wt := f64(c.w.Value)
	bs := f64(c.b.Value)
	out := make([]float64, n*oH*oW*oD*oC)

	inSH, inSW, inSD := w*d*ch, d*ch, ch
	outSH, outSW, outSD := oW*oD*oC, oD*oC, oC

	parallel.Parallelize(n, func(start, end int) {
		for bi := start; bi < end; bi++ {
			inBase := bi * h * inSH
			outBase := bi * oH * outSH
			for oh := 0; oh < oH; oh++ {
				for ow := 0; ow < oW; ow++ {
					for od := 0; od < oD; od++ {
						dst := out[outBase+oh*outSH+ow*outSW+od*outSD:]
						for oc := 0; oc < oC; oc++ {
							dst[oc] = bs[oc]
						}
						for kh := 0; kh < kH; kh++ {
							ih := oh*c.Stride - pH + kh
							if ih < 0 || ih >= h {
								continue
							}
							for kw := 0; kw < kW; kw++ {
								iw := ow*c.Stride - pW + kw
								if iw < 0 || iw >= w {
									continue
								}
								for kd := 0; kd < kD; kd++ {
									id := od*c.Stride - pD + kd
									if id < 0 || id >= d {
										continue
									}
									src := in[inBase+ih*inSH+iw*inSW+id*inSD:]
									wOff := (((kh*kW+kw)*kD + kd) * c.InChannels) * oC
									for ic := 0; ic < c.InChannels; ic++ {
										v := src[ic]
										if v == 0 {
											continue
										}
										wRow := wt[wOff+ic*oC:]
										for oc := 0; oc < oC; oc++ {
											dst[oc] += v * wRow[oc]
										}
									}
								}
							}
						}
					}
				}
			}
		}
	})

	c.x = x
	return tensor.New(tensor.WithShape(n, oH, oW, oD, oC), tensor.WithBacking(out)), nil
}

func (c *Conv3D) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if c.x == nil {
		return nil, verrors.NewModelError("Conv3D.Backward", "no cached forward input", nil)
	}
	xs := c.x.Shape()
	n, h, w, d := xs[0], xs[1], xs[2], xs[3]
	gs := grad.Shape()
	oH, oW, oD, oC := gs[1], gs[2], gs[3], gs[4]

	kH, kW, kD := c.Kernel[0], c.Kernel[1], c.Kernel[2]
	_, pH := outExtent(h, kH, c.Stride)
	_, pW := outExtent(w, kW, c.Stride)
	_, pD := outExtent(d, kD, c.Stride)

	in := f64(c.x)
	wt := f64(c.w.Value)
	dy := f64(grad)
	dw := f64(c.w.Grad)
	db := f64(c.b.Grad)
	dx := make([]float64, len(in))

	inSH, inSW, inSD := w*d*c.InChannels, d*c.InChannels, c.InChannels
	outSH, outSW, outSD := oW*oD*oC, oD*oC, oC

	// Batch rows of dx are disjoint across workers; weight and bias
	// gradients are accumulated per worker and merged afterwards.
	var mu sync.Mutex
	parallel.Parallelize(n, func(start, end int) {
		localDW := make([]float64, len(dw))
		localDB := make([]float64, len(db))
		for bi := start; bi < end; bi++ {
			inBase := bi * h * inSH
			outBase := bi * oH * outSH
			for oh := 0; oh < oH; oh++ {
				for ow := 0; ow < oW; ow++ {
					for od := 0; od < oD; od++ {
						g := dy[outBase+oh*outSH+ow*outSW+od*outSD:]
						for oc := 0; oc < oC; oc++ {
							localDB[oc] += g[oc]
						}
						for kh := 0; kh < kH; kh++ {
							ih := oh*c.Stride - pH + kh
							if ih < 0 || ih >= h {
								continue
							}
							for kw := 0; kw < kW; kw++ {
								iw := ow*c.Stride - pW + kw
								if iw < 0 || iw >= w {
									continue
								}
								for kd := 0; kd < kD; kd++ {
									id := od*c.Stride - pD + kd
									if id < 0 || id >= d {
										continue
									}
									srcOff := inBase + ih*inSH + iw*inSW + id*inSD
									wOff := (((kh*kW+kw)*kD + kd) * c.InChannels) * oC
									for ic := 0; ic < c.InChannels; ic++ {
										xv := in[srcOff+ic]
										wRow := wt[wOff+ic*oC:]
										var acc float64
										for oc := 0; oc < oC; oc++ {
											gv := g[oc]
											localDW[wOff+ic*oC+oc] += xv * gv
											acc += wRow[oc] * gv
										}
										dx[srcOff+ic] += acc
									}
								}
							}
						}
					}
				}
			}
		}
		mu.Lock()
		for i, v := range localDW {
			dw[i] += v
		}
		for i, v := range localDB {
			db[i] += v
		}
		mu.Unlock()
	})

	return tensor.New(tensor.WithShape(n, h, w, d, c.InChannels), tensor.WithBacking(dx)), nil
}
