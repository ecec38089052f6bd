package handlers

import (
	"time"

	"studypal/internal/models"
)

// UserDTO is the public view of an account. The password hash never leaves the server.
type UserDTO struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      *string     `json:"name,omitempty"`
	Image     *string     `json:"image,omitempty"`
	Role      models.Role `json:"role"`
	CreatedAt string      `json:"createdAt"`
}

func ToUserDTO(u *models.User) UserDTO {
	return UserDTO{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Image:     u.Image,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DiaryEntryDTO reports the day as a date-only string.
type DiaryEntryDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Entry     string `json:"entry"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func ToDiaryEntryDTO(e *models.DiaryEntry) DiaryEntryDTO {
	return DiaryEntryDTO{
		ID:        e.ID.String(),
		Date:      e.Date.Format("2006-01-02"),
		Entry:     e.Entry,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toDiaryEntryDTOs(entries []models.DiaryEntry) []DiaryEntryDTO {
	out := make([]DiaryEntryDTO, 0, len(entries))
	for i := range entries {
		out = append(out, ToDiaryEntryDTO(&entries[i]))
	}
	return out
}
