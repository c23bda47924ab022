package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassInfoAnnotationParam(t *testing.T) {
	c := &ClassInfo{
		Name: "com.x.Widget",
		Annotations: []Annotation{
			{TypeName: "javax.inject.Named", Params: map[string]any{"value": "widget"}},
		},
	}

	v, ok := c.AnnotationParam("javax.inject.Named", "value")
	assert.True(t, ok)
	assert.Equal(t, "widget", v)
}

func TestClassInfoAnnotationParamMissingAnnotation(t *testing.T) {
	c := &ClassInfo{Name: "com.x.Widget"}

	_, ok := c.AnnotationParam("javax.inject.Named", "value")
	assert.False(t, ok)
}

func TestClassInfoAnnotationParamMissingKey(t *testing.T) {
	c := &ClassInfo{
		Annotations: []Annotation{
			{TypeName: "javax.inject.Named", Params: map[string]any{"value": "widget"}},
		},
	}

	_, ok := c.AnnotationParam("javax.inject.Named", "scope")
	assert.False(t, ok)
}
