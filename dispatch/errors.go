// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package dispatch

import "errors"

var (
	// ErrJobNotFound indicates the job id is unknown or its record expired.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotFinished indicates Result was called before the job reached
	// a terminal status.
	ErrJobNotFinished = errors.New("job not finished")

	// ErrJobFailed indicates the job finished with a handler error.
	ErrJobFailed = errors.New("job failed")

	// ErrUnknownStage indicates a job named a stage no handler is
	// registered for.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrWorkerClosed indicates the worker was asked to run after Close.
	ErrWorkerClosed = errors.New("worker is closed")
)
