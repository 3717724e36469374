package http

import "battle-room-service/internal/domain"

// presentRoom hides the answers of questions that are still open or not yet asked.
func presentRoom(room *domain.Room) *domain.Room {
	if room == nil || room.Status == domain.StatusFinished {
		return room
	}
	view := room.Clone()
	for i := range view.Questions {
		if room.Status == domain.StatusWaiting || i >= room.CurrentQuestion {
			view.Questions[i].Answer = ""
			view.Questions[i].Explanation = ""
		}
	}
	return view
}
