// Package routeplanner implements the passive setpoint/obstacle holder
// described in SPEC_FULL.md §4.6, grounded on route_planning.cpp's
// mutex-guarded setpoint struct and atan2-based heading calculation, and
// enriched with single-obstacle contouring, a spec-level addition absent
// from the original source. The obstacle-avoidance side convention (which
// perpendicular offset to pick) is decided in DESIGN.md's Open Question #1:
// a positive 2D cross product of the path vector with the obstacle vector
// means the obstacle sits to the path's left, so the offset is applied to
// the path's right.
package routeplanner

import (
	"math"
	"sync"

	"github.com/joaoigorandrade/ATR/internal/obslog"
	"github.com/joaoigorandrade/ATR/internal/types"
)

var log = obslog.For("RP")

const (
	lookAhead       = 200
	avoidanceRadius = 80.0
	margin          = 20.0
)

// Planner is the process-wide route-planning state: a target setpoint and
// the current obstacle list, guarded by a single lock.
type Planner struct {
	mu        sync.Mutex
	setpoint  types.NavigationSetpoint
	obstacles []types.Obstacle

	lookAhead       int
	avoidanceRadius float64
	margin          float64
}

// New constructs a Planner with the spec's default constants.
func New() *Planner {
	return &Planner{lookAhead: lookAhead, avoidanceRadius: avoidanceRadius, margin: margin}
}

// NewWithConstants constructs a Planner with caller-supplied tunables,
// sourced from config.RoutePlannerConfig.
func NewWithConstants(lookAhead int, avoidanceRadius, margin float64) *Planner {
	return &Planner{lookAhead: lookAhead, avoidanceRadius: avoidanceRadius, margin: margin}
}

// SetTarget atomically replaces the stored setpoint, matching
// set_target_waypoint.
func (p *Planner) SetTarget(x, y, speed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setpoint = types.NavigationSetpoint{TargetX: x, TargetY: y, TargetSpeed: speed}
	log.Info("", "event", "waypoint", "x", x, "y", y, "speed", speed)
}

// UpdateObstacles atomically replaces the stored obstacle list.
func (p *Planner) UpdateObstacles(obstacles []types.Obstacle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.obstacles = obstacles
}

// Setpoint returns a copy of the stored setpoint.
func (p *Planner) Setpoint() types.NavigationSetpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setpoint
}

// HeadingToTarget returns the integer-degree bearing from (currentX,
// currentY) to the stored target, using atan2's natural [-180, 180] range
// with no further normalization, matching calculate_target_angle.
func (p *Planner) HeadingToTarget(currentX, currentY int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	dx := float64(p.setpoint.TargetX - currentX)
	dy := float64(p.setpoint.TargetY - currentY)
	return int(math.Atan2(dy, dx) * 180.0 / math.Pi)
}

// ComputeAdjustedSetpoint returns a possibly-perturbed setpoint implementing
// single-obstacle contouring, per spec.md §4.6.
func (p *Planner) ComputeAdjustedSetpoint(currentX, currentY int) types.NavigationSetpoint {
	p.mu.Lock()
	setpoint := p.setpoint
	obstacles := append([]types.Obstacle(nil), p.obstacles...)
	lookAhead := float64(p.lookAhead)
	avoidRadius := p.avoidanceRadius
	margin := p.margin
	p.mu.Unlock()

	pathX := float64(setpoint.TargetX - currentX)
	pathY := float64(setpoint.TargetY - currentY)
	distance := math.Sqrt(pathX*pathX + pathY*pathY)

	if distance < 1 {
		return setpoint
	}

	dirX, dirY := pathX/distance, pathY/distance

	maxProjection := math.Min(distance, lookAhead)

	type threat struct {
		obstacle   types.Obstacle
		projection float64
		perp       float64
	}

	var nearest *threat
	for _, obstacle := range obstacles {
		ox := float64(obstacle.X - currentX)
		oy := float64(obstacle.Y - currentY)

		projection := ox*dirX + oy*dirY
		// Inclusive at the top: an obstacle projecting exactly onto
		// min(distance, lookAhead) is still a threat (e.g. an obstacle sitting
		// exactly at the look-ahead distance on a straight-line path).
		if !(projection > 0 && projection <= maxProjection) {
			continue
		}

		// Perpendicular distance from the path line.
		perpSigned := ox*dirY - oy*dirX // cross(obstacleVec, dir)
		perp := math.Abs(perpSigned)
		if perp >= avoidRadius {
			continue
		}

		if nearest == nil || projection < nearest.projection {
			nearest = &threat{obstacle: obstacle, projection: projection, perp: perpSigned}
		}
	}

	if nearest == nil {
		return setpoint
	}

	// cross(path, obstacleVec) > 0 means the obstacle is to the path's
	// left; steer the offset to the path's right in that case, and to the
	// path's left otherwise. The right-hand perpendicular of (dirX, dirY)
	// is (dirY, -dirX).
	obsX := float64(nearest.obstacle.X - currentX)
	obsY := float64(nearest.obstacle.Y - currentY)
	cross := dirX*obsY - dirY*obsX

	offsetX, offsetY := dirY, -dirX // right-hand perpendicular
	if cross < 0 {
		offsetX, offsetY = -dirY, dirX // obstacle is to the right, go left
	}

	adjustedDistance := avoidRadius + margin
	adjustedX := int(math.Round(float64(nearest.obstacle.X) + offsetX*adjustedDistance))
	adjustedY := int(math.Round(float64(nearest.obstacle.Y) + offsetY*adjustedDistance))

	log.Debug("", "event", "avoid", "obstacle_id", nearest.obstacle.ID, "adj_x", adjustedX, "adj_y", adjustedY)

	return types.NavigationSetpoint{
		TargetX:       adjustedX,
		TargetY:       adjustedY,
		TargetSpeed:   setpoint.TargetSpeed,
		TargetHeading: setpoint.TargetHeading,
	}
}
