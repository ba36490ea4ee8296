//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/tunogya/augur/pkg/config"
	"github.com/tunogya/augur/pkg/pipeline"
)

var runnerSet = wire.NewSet(
	ProvideLogger,
	ProvideRecorder,
	ProvideDuckDB,
	ProvideNATS,
	ProvideMilvus,
	ProvideBarProvider,
	ProvideSinks,
	ProvideRunner,
)

// InitializeRunner wires the batch training runner
func InitializeRunner(cfg *config.Config) (*pipeline.Runner, func(), error) {
	wire.Build(runnerSet)
	return nil, nil, nil
}

// InitializeApp wires the HTTP service
func InitializeApp(cfg *config.Config) (*App, func(), error) {
	wire.Build(
		runnerSet,
		ProvideSimulator,
		ProvideServer,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
