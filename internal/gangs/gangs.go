// Package gangs implements the gang war economy: gangs bought with rep, the
// monthly dues cycle, item shops, territory raids, shakedowns and banners.
//
// Every operation runs in one database transaction. Discord side effects that
// must succeed for the operation to make sense (roles, channels) happen inside
// the transaction so a failure rolls the rep charge back; announcements are
// sent after commit and only logged on failure.
package gangs

import (
	"fmt"
	"strings"
	"time"
)

const (
	// BaseGangCost is charged on top of the chosen join and upkeep bases
	// when a gang is formed.
	BaseGangCost = 100
	// StartingControl is the control a new gang starts with.
	StartingControl = 100
	// RaidStartCost is the control a gang pays to start a raid.
	RaidStartCost = 1000
	// RaidLength is how long a raid runs before it is resolved.
	RaidLength = 7 * 24 * time.Hour
	// BannerRepRequirement is the rep a gang leader needs to request a banner.
	BannerRepRequirement = 500
	// ItemFindChance is the chance a shakedown confiscates one unit of an
	// inventory row.
	ItemFindChance = 0.2
	// MaxCost bounds the join and upkeep parameters of a gang.
	MaxCost = 32767
)

// RepToControl converts rep paid into a gang into control.
func RepToControl(rep int) int {
	return rep / 50
}

// Color is one of the fixed gang colors. A gang is named after its color.
type Color struct {
	Name  string
	Value int
}

// Colors lists the gang colors in display order.
var Colors = []Color{
	{Name: "Black", Value: 0x36454F},
	{Name: "Red", Value: 0x992D22},
	{Name: "Green", Value: 0x2ECC71},
	{Name: "Blue", Value: 0x0000FF},
	{Name: "Purple", Value: 0x800080},
	{Name: "Violet", Value: 0xEE82EE},
	{Name: "Yellow", Value: 0xFFD700},
	{Name: "Orange", Value: 0xFF6200},
	{Name: "White", Value: 0xC0C0C0},
}

// ParseColor looks a color up by name, ignoring case.
func ParseColor(name string) (Color, bool) {
	for _, c := range Colors {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return Color{}, false
}

// RoleName is the Discord role name of a gang, e.g. "White Gang".
func RoleName(gang string) string {
	return gang + " Gang"
}

// ChannelName is the Discord channel name of a gang, e.g. "white-gang".
func ChannelName(gang string) string {
	return strings.ToLower(strings.ReplaceAll(RoleName(gang), " ", "-"))
}

// Benefit is what an item or territory does for its owner.
type Benefit int16

const (
	BenefitControl Benefit = iota
	BenefitDefense
	BenefitOffense
	BenefitOther
)

func (b Benefit) String() string {
	switch b {
	case BenefitControl:
		return "control"
	case BenefitDefense:
		return "defense"
	case BenefitOffense:
		return "offense"
	case BenefitOther:
		return "other"
	default:
		return fmt.Sprintf("benefit(%d)", int16(b))
	}
}

// ParseBenefit parses the lower case benefit name.
func ParseBenefit(s string) (Benefit, bool) {
	for b := BenefitControl; b <= BenefitOther; b++ {
		if strings.EqualFold(b.String(), strings.TrimSpace(s)) {
			return b, true
		}
	}
	return 0, false
}

// Gang is a row of the gangs table plus its member count.
type Gang struct {
	Name        string
	Color       int
	Leader      int64
	Role        int64
	Channel     int64
	Control     int
	JoinBase    int
	JoinSlope   int
	UpkeepBase  int
	UpkeepSlope int
	AllPaid     bool
	Members     int
}

// JoinCost is the rep the next member pays to join.
func (g Gang) JoinCost() int {
	return g.JoinBase + g.JoinSlope*g.Members
}

// Upkeep is the rep every member pays per dues cycle.
func (g Gang) Upkeep() int {
	return g.UpkeepBase + g.UpkeepSlope*g.Members
}

// Member is a gang membership.
type Member struct {
	UserID     int64
	Gang       string
	Paid       bool
	Leader     bool
	Leadership bool
}

// InLeadership reports whether the member may act for the gang.
func (m Member) InLeadership() bool {
	return m.Leader || m.Leadership
}
