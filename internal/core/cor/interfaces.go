// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor is a small Chain of Responsibility framework. The dataset
// analysis and archive trigger workflows are built as chains of commands that
// share a Context property bag.
//
// Logic Flow:
//  1. A workflow creates a Context with NewBaseContext and seeds CtxIn.
//  2. A BaseChain runs its commands in order, each in its own span.
//  3. The value a command writes to CtxOut becomes the next command's CtxIn.
//  4. A command that fails calls AddError; unless ContinueOnFailure(true) was
//     set, the chain stops before the next command.
//  5. The caller defers Close to release temporary files and directories.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CtxIn is the default key for the primary input of a command.
	CtxIn = "__IN__"
	// CtxOut is the default key for the primary output of a command.
	CtxOut = "__OUT__"
)

// Context is the property bag passed between commands. Implementations must be
// safe for concurrent use since commands may fan work out to goroutines.
type Context interface {
	SetContext(context context.Context)
	GetContext() context.Context

	// Add stores a value and returns the Context for chaining.
	Add(key string, value interface{}) Context
	Get(key string) interface{}
	Remove(key string)

	// AddError records an error, usually keyed by the failing command's name.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
	// Err joins all recorded errors, or returns nil.
	Err() error

	// AddTempFile tracks a file or directory removed on Close.
	AddTempFile(file string)
	GetTempFiles() []string
	Close()
}

// Executable is anything that can run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a single named step of a chain with its own telemetry.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command made of Commands.
type Chain interface {
	Command

	ContinueOnFailure(bool) Chain
	AddCommand(command Command) Chain
}
