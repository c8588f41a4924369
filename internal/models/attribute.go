package models

import (
	"fmt"
	"strings"
)

// Attribute is one of the four growth areas a habit trains.
type Attribute string

const (
	AttributePhysical  Attribute = "PH"
	AttributeCognitive Attribute = "CO"
	AttributeHeart     Attribute = "EM"
	AttributeSoul      Attribute = "SO"
)

// AllAttributes lists every attribute in display order.
var AllAttributes = []Attribute{AttributePhysical, AttributeCognitive, AttributeHeart, AttributeSoul}

func (a Attribute) IsValid() bool {
	switch a {
	case AttributePhysical, AttributeCognitive, AttributeHeart, AttributeSoul:
		return true
	default:
		return false
	}
}

// Name returns the human-readable attribute name.
func (a Attribute) Name() string {
	switch a {
	case AttributePhysical:
		return "Physical"
	case AttributeCognitive:
		return "Cognitive"
	case AttributeHeart:
		return "Heart"
	case AttributeSoul:
		return "Soul"
	default:
		return string(a)
	}
}

// ParseAttribute accepts either the wire code (PH, CO, EM, SO) or the name.
func ParseAttribute(input string) (Attribute, error) {
	s := strings.TrimSpace(strings.ToLower(input))
	switch s {
	case "ph", "physical":
		return AttributePhysical, nil
	case "co", "cognitive":
		return AttributeCognitive, nil
	case "em", "heart":
		return AttributeHeart, nil
	case "so", "soul":
		return AttributeSoul, nil
	}
	return "", fmt.Errorf("invalid attribute: %q (expected PH, CO, EM or SO)", input)
}

// AttributeXP holds one XP total per attribute.
type AttributeXP struct {
	PH int `json:"PH"`
	CO int `json:"CO"`
	EM int `json:"EM"`
	SO int `json:"SO"`
}

// Get returns the XP for attr; unknown attributes have none.
func (x AttributeXP) Get(attr Attribute) int {
	switch attr {
	case AttributePhysical:
		return x.PH
	case AttributeCognitive:
		return x.CO
	case AttributeHeart:
		return x.EM
	case AttributeSoul:
		return x.SO
	default:
		return 0
	}
}

// Add adds amount to attr and ignores unknown attributes.
func (x *AttributeXP) Add(attr Attribute, amount int) {
	switch attr {
	case AttributePhysical:
		x.PH += amount
	case AttributeCognitive:
		x.CO += amount
	case AttributeHeart:
		x.EM += amount
	case AttributeSoul:
		x.SO += amount
	}
}

// Plus returns the element-wise sum.
func (x AttributeXP) Plus(o AttributeXP) AttributeXP {
	return AttributeXP{PH: x.PH + o.PH, CO: x.CO + o.CO, EM: x.EM + o.EM, SO: x.SO + o.SO}
}

func (x AttributeXP) Total() int {
	return x.PH + x.CO + x.EM + x.SO
}
