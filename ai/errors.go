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


package ai

import "errors"

// ErrQuotaExceeded indicates the completion service rejected the request for
// rate limiting or quota reasons after the retry budget was exhausted.
var ErrQuotaExceeded = errors.New("completion quota exceeded")

// ErrCompletionTimeout indicates a completion request exceeded its deadline.
var ErrCompletionTimeout = errors.New("completion timed out")

// ErrEmptyCompletion indicates the model returned no usable text.
var ErrEmptyCompletion = errors.New("empty completion")
