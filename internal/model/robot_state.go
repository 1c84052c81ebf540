package model

// RobotState is the robot pose snapshot shared with the solver and status UIs.
type RobotState struct {
	Backward    bool `json:"backward"`
	Orientation int  `json:"orientation"`
	X           int  `json:"x_coord"`
	Y           int  `json:"y_coord"`
}

// InitialRobotState is the pose written at process start.
func InitialRobotState() RobotState {
	return RobotState{Backward: true}
}

// Position returns the pose coordinate.
func (s RobotState) Position() Coordinate {
	return Coordinate{X: s.X, Y: s.Y}
}

// WithPosition returns a copy moved to c. Orientation and direction are left to the solver.
func (s RobotState) WithPosition(c Coordinate) RobotState {
	s.X, s.Y = c.X, c.Y
	return s
}
