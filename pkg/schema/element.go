package schema

import (
	"encoding/json"
	"fmt"
)

// ElementType is the canvas-level type tag of an element.
type ElementType string

const (
	ElementRectangle ElementType = "rectangle"
	ElementEllipse   ElementType = "ellipse"
	ElementDiamond   ElementType = "diamond"
	ElementArrow     ElementType = "arrow"
	ElementText      ElementType = "text"
	ElementLabel     ElementType = "label"
	ElementFreedraw  ElementType = "freedraw"
	ElementLine      ElementType = "line"
)

// ElementTypes lists every type a canvas accepts, in declaration order.
var ElementTypes = []ElementType{
	ElementRectangle, ElementEllipse, ElementDiamond, ElementArrow,
	ElementText, ElementLabel, ElementFreedraw, ElementLine,
}

// Valid reports whether t is a known canvas element type.
func (t ElementType) Valid() bool {
	for _, known := range ElementTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Arrowhead names the decoration drawn at a connector end.
type Arrowhead string

const ArrowheadArrow Arrowhead = "arrow"

// Roundness is a corner hint for rectangle-like shapes.
type Roundness string

const RoundnessRound Roundness = "round"

// Style is the fixed set of visual attributes shared by every element.
type Style struct {
	StrokeColor     string    `json:"strokeColor"`
	BackgroundColor string    `json:"backgroundColor"`
	FillStyle       string    `json:"fillStyle"`
	StrokeWidth     float64   `json:"strokeWidth"`
	Roughness       int       `json:"roughness"`
	Opacity         int       `json:"opacity"`
	Roundness       Roundness `json:"roundness,omitempty"`
}

// Point is a relative [x, y] pair inside a connector.
type Point [2]float64

// Element is a synthesized canvas record. It is either a *ShapeElement or a
// *ConnectorElement.
type Element interface {
	ElementID() string
	ElementType() ElementType
	isElement()
}

// ShapeElement is the geometric record for one diagram node.
type ShapeElement struct {
	ID     string      `json:"id"`
	Type   ElementType `json:"type"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Text   string      `json:"text"`
	Style
	Seed         int64 `json:"seed"`
	VersionNonce int64 `json:"versionNonce"`
}

func (s *ShapeElement) ElementID() string        { return s.ID }
func (s *ShapeElement) ElementType() ElementType { return s.Type }
func (*ShapeElement) isElement()                 {}

// Center returns the midpoint of the shape's bounding box.
func (s *ShapeElement) Center() (float64, float64) {
	return s.X + s.Width/2, s.Y + s.Height/2
}

// ConnectorElement is the geometric record for one diagram edge. X/Y is the
// start point and Points are relative to it.
type ConnectorElement struct {
	ID             string      `json:"id"`
	Type           ElementType `json:"type"`
	From           string      `json:"from"`
	To             string      `json:"to"`
	X              float64     `json:"x"`
	Y              float64     `json:"y"`
	Width          float64     `json:"width"`
	Height         float64     `json:"height"`
	Points         []Point     `json:"points"`
	Text           string      `json:"text,omitempty"`
	StartArrowhead Arrowhead   `json:"startArrowhead,omitempty"`
	EndArrowhead   Arrowhead   `json:"endArrowhead,omitempty"`
	Style
	Seed         int64 `json:"seed"`
	VersionNonce int64 `json:"versionNonce"`
}

func (c *ConnectorElement) ElementID() string        { return c.ID }
func (c *ConnectorElement) ElementType() ElementType { return c.Type }
func (*ConnectorElement) isElement()                 {}

// EndPoint returns the absolute coordinates of the connector's last point.
func (c *ConnectorElement) EndPoint() (float64, float64) {
	if len(c.Points) == 0 {
		return c.X, c.Y
	}
	last := c.Points[len(c.Points)-1]
	return c.X + last[0], c.Y + last[1]
}

// DecodeElement restores the concrete variant of a JSON-encoded element.
func DecodeElement(data []byte) (Element, error) {
	var head struct {
		Type ElementType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, NewError(ErrCodeInvalidInput, "decode element").WithCause(err)
	}
	switch head.Type {
	case ElementRectangle, ElementEllipse, ElementDiamond:
		var s ShapeElement
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, NewError(ErrCodeInvalidInput, "decode shape element").WithCause(err)
		}
		return &s, nil
	case ElementArrow:
		var c ConnectorElement
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, NewError(ErrCodeInvalidInput, "decode connector element").WithCause(err)
		}
		return &c, nil
	default:
		return nil, NewErrorf(ErrCodeInvalidInput, "unsupported element type %q", head.Type)
	}
}

// SplitElements separates shapes and connectors preserving order.
func SplitElements(elems []Element) ([]*ShapeElement, []*ConnectorElement) {
	var shapes []*ShapeElement
	var connectors []*ConnectorElement
	for _, e := range elems {
		switch v := e.(type) {
		case *ShapeElement:
			shapes = append(shapes, v)
		case *ConnectorElement:
			connectors = append(connectors, v)
		default:
			panic(fmt.Sprintf("schema: unknown element %T", e))
		}
	}
	return shapes, connectors
}
