// Copyright 2025 Tom Barlow
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

package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunQueryNoExpressionReturnsInput(t *testing.T) {
	data := map[string]any{"result_handle": "h1"}
	got, err := RunQuery(context.Background(), "", data)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRunQueryExtractsField(t *testing.T) {
	data := map[string]any{"result_handle": "h1", "status": "SUCCEEDED"}
	got, err := RunQuery(context.Background(), ".result_handle", data)
	require.NoError(t, err)
	assert.Equal(t, "h1", got)
}

func TestRunQueryInvalidExpression(t *testing.T) {
	_, err := RunQuery(context.Background(), "{{{", map[string]any{})
	assert.Error(t, err)
}
