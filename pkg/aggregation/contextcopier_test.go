// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	tags  map[string]string
	props map[string]string
}

func newFakeContext() *fakeContext {
	return &fakeContext{tags: map[string]string{}, props: map[string]string{}}
}

func (c *fakeContext) CopyTagsTo(dst PropertyContext) {
	other := dst.(*fakeContext)
	for k, v := range c.tags {
		other.tags[k] = v
	}
}

func (c *fakeContext) Properties() map[string]string { return c.props }

func (c *fakeContext) SetProperty(key, value string) bool {
	if _, exists := c.props[key]; exists {
		return false
	}
	c.props[key] = value
	return true
}

func TestContextCopierPreservesExistingTargetValues(t *testing.T) {
	src := newFakeContext()
	src.props["region"] = "eu-west"
	src.props["host"] = "node1"

	dst := newFakeContext()
	dst.props["region"] = "us-east" // must survive the copy

	require.NoError(t, Copy(src, dst))

	assert.Equal(t, "us-east", dst.props["region"])
	assert.Equal(t, "node1", dst.props["host"])
}

func TestContextCopierSkipsEmptyOrWhitespaceSourceKeys(t *testing.T) {
	src := newFakeContext()
	src.props[""] = "ignored"
	src.props["   "] = "also ignored"
	src.props["valid"] = "kept"

	dst := newFakeContext()
	require.NoError(t, Copy(src, dst))

	assert.Len(t, dst.props, 1)
	assert.Equal(t, "kept", dst.props["valid"])
}

func TestContextCopierCopiesTags(t *testing.T) {
	src := newFakeContext()
	src.tags["cluster"] = "alpha"

	dst := newFakeContext()
	require.NoError(t, Copy(src, dst))

	assert.Equal(t, "alpha", dst.tags["cluster"])
}

func TestContextCopierRejectsNilArguments(t *testing.T) {
	assert.ErrorIs(t, Copy(nil, newFakeContext()), ErrNullArgument)
	assert.ErrorIs(t, Copy(newFakeContext(), nil), ErrNullArgument)
}
