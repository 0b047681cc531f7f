package agents

import (
	"context"
	"fmt"

	"github.com/kafeai/brigade/pkg/imagegen"
	"github.com/kafeai/brigade/pkg/resilience"
	"github.com/kafeai/brigade/pkg/workflow"
)

// PosterAgent renders the promotional poster for an active promotion. When
// the image backend fails, the placeholder generator keeps the pipeline
// producing an asset instead of surfacing a failure.
type PosterAgent struct {
	Images    imagegen.Generator
	Fallback  imagegen.Generator
	AssetsDir string
}

func (a *PosterAgent) Name() string { return StagePoster }

// Run implements workflow.Stage.
func (a *PosterAgent) Run(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	promo := state.Promotion
	if promo == nil {
		return &workflow.Update{
			Context: []string{fmt.Sprintf("%s: No promotion data found.", StagePoster)},
		}, nil
	}

	prompt := fmt.Sprintf(
		"A beautiful hand-drawn colored pencil illustration of %s, "+
			"whimsical sketch style, clean white background or soft textured paper, "+
			"artistic food illustration, professional cafe menu art, high resolution, detailed",
		promo.VisualPrompt)

	raw, err := resilience.WithFallback(ctx,
		func() (interface{}, error) {
			return a.Images.Generate(ctx, prompt)
		},
		resilience.FallbackFunc(func(ctx context.Context, _ error) (interface{}, error) {
			return a.Fallback.Generate(ctx, prompt)
		}))
	if err != nil {
		return nil, err
	}
	data, ok := raw.([]byte)
	if !ok || len(data) == 0 {
		return nil, fmt.Errorf("image generator returned no data")
	}

	path, err := imagegen.SavePoster(a.AssetsDir, promo.PromotionID, data)
	if err != nil {
		return nil, err
	}
	return &workflow.Update{
		PosterPath: workflow.String(path),
		Context:    []string{fmt.Sprintf("%s: Asset generated at %s", StagePoster, path)},
	}, nil
}
