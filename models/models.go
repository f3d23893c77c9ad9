package models

// All lists every table owned by the service, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&AppSetting{},
		&Attendance{},
		&PointLog{},
		&Class{},
		&ClassMember{},
		&Material{},
		&Quiz{},
		&QuizQuestion{},
		&QuizAttempt{},
		&Discussion{},
		&DiscussionReply{},
	}
}
