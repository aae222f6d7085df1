package core

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storyforge.io/server/internal/world"
)

// Bundle is the combined output of a pipeline run. Locations is nil when the
// genre has no locations stage.
type Bundle struct {
	Genre      world.Genre
	Setting    world.Setting
	Locations  []world.Location
	Characters []world.Character
}

// GenerationPipeline runs world -> locations? -> characters for one genre.
type GenerationPipeline struct {
	llm      Generator
	parallel bool
	logger   *zap.Logger
}

// NewGenerationPipeline builds a pipeline. With parallel set, the locations and
// characters stages run concurrently and the characters prompt does not see
// the generated locations.
func NewGenerationPipeline(llm Generator, parallel bool, logger *zap.Logger) *GenerationPipeline {
	return &GenerationPipeline{llm: llm, parallel: parallel, logger: logger}
}

func (p *GenerationPipeline) Run(ctx context.Context, genre world.Genre, userPrompt string) (*Bundle, error) {
	schema := world.SchemaFor(genre)
	system, err := schema.SystemPrompt()
	if err != nil {
		return nil, err
	}
	vars := world.PromptVars{Genre: schema.Genre, Prompt: userPrompt}

	worldRaw, err := p.stage(ctx, schema, world.StageWorld, system, vars)
	if err != nil {
		return nil, err
	}
	setting, err := schema.ParseSetting(worldRaw)
	if err != nil {
		return nil, &GenerationError{Stage: world.StageWorld, Err: err}
	}
	vars.WorldData = string(worldRaw)
	p.logger.Debug("world stage complete", zap.String("genre", string(schema.Genre)), zap.String("world", setting.Basics().Name))

	bundle := &Bundle{Genre: schema.Genre, Setting: setting}
	if p.parallel {
		err = p.runConcurrent(ctx, schema, system, vars, bundle)
	} else {
		err = p.runSequential(ctx, schema, system, vars, bundle)
	}
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (p *GenerationPipeline) runSequential(ctx context.Context, schema world.Schema, system string, vars world.PromptVars, bundle *Bundle) error {
	if schema.HasLocations() {
		raw, locations, err := p.locations(ctx, schema, system, vars)
		if err != nil {
			return err
		}
		bundle.Locations = locations
		vars.LocationsData = string(raw)
	}
	characters, err := p.characters(ctx, schema, system, vars)
	if err != nil {
		return err
	}
	bundle.Characters = characters
	return nil
}

func (p *GenerationPipeline) runConcurrent(ctx context.Context, schema world.Schema, system string, vars world.PromptVars, bundle *Bundle) error {
	g, gctx := errgroup.WithContext(ctx)
	if schema.HasLocations() {
		g.Go(func() error {
			_, locations, err := p.locations(gctx, schema, system, vars)
			if err != nil {
				return err
			}
			bundle.Locations = locations
			return nil
		})
	}
	g.Go(func() error {
		characters, err := p.characters(gctx, schema, system, vars)
		if err != nil {
			return err
		}
		bundle.Characters = characters
		return nil
	})
	return g.Wait()
}

func (p *GenerationPipeline) locations(ctx context.Context, schema world.Schema, system string, vars world.PromptVars) ([]byte, []world.Location, error) {
	raw, err := p.stage(ctx, schema, world.StageLocations, system, vars)
	if err != nil {
		return nil, nil, err
	}
	locations, err := schema.ParseLocations(raw)
	if err != nil {
		return nil, nil, &GenerationError{Stage: world.StageLocations, Err: err}
	}
	return raw, locations, nil
}

func (p *GenerationPipeline) characters(ctx context.Context, schema world.Schema, system string, vars world.PromptVars) ([]world.Character, error) {
	raw, err := p.stage(ctx, schema, world.StageCharacters, system, vars)
	if err != nil {
		return nil, err
	}
	characters, err := schema.ParseCharacters(raw)
	if err != nil {
		return nil, &GenerationError{Stage: world.StageCharacters, Err: err}
	}
	return characters, nil
}

// stage renders the stage prompt and invokes structured generation against
// the stage's target schema.
func (p *GenerationPipeline) stage(ctx context.Context, schema world.Schema, stage world.Stage, system string, vars world.PromptVars) ([]byte, error) {
	prompt, err := schema.Render(stage, vars)
	if err != nil {
		return nil, err
	}

	target := schema.World
	switch stage {
	case world.StageLocations:
		target = schema.Location
	case world.StageCharacters:
		target = schema.Character
	}

	raw, err := p.llm.GenerateStructured(ctx, system, prompt, target)
	if err != nil {
		p.logger.Warn("generation stage failed", zap.String("stage", string(stage)), zap.String("genre", string(schema.Genre)), zap.Error(err))
		return nil, &GenerationError{Stage: stage, Err: err}
	}
	return raw, nil
}
