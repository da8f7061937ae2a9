package worker

import (
	"math"

	"github.com/nextbysam/cinetune-render/internal/design"
	"github.com/nextbysam/cinetune-render/internal/engine"
)

// ResolveComposition はデザインからコンポジション定義を導出します。
// フレーム数は ceil(duration/1000 * fps) で、0 は 1 フレームへ切り上げます。
func ResolveComposition(d *design.Design) engine.Composition {
	frames := int(math.Ceil(d.Duration / 1000 * d.FPS))
	if frames < 1 {
		frames = 1
	}
	return engine.Composition{
		Width:            d.Size.Width,
		Height:           d.Size.Height,
		FPS:              d.FPS,
		DurationInFrames: frames,
	}
}
