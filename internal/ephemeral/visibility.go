// Package ephemeral derives per-viewer visibility of messages. Nothing here
// is persisted: expiry is recomputed from the view count, the view budget,
// the viewer's recorded view time and the disappearance window, so every
// process computes the same answer for the same rows.
package ephemeral

import (
	"time"
	"unicode/utf8"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/models"
)

// ExpiredPlaceholder replaces the content of a message the viewer may no longer see.
const ExpiredPlaceholder = "expired"

const previewRunes = 80

// IsExpiredFor reports whether viewerID may no longer see m at now.
//
// The sender never loses access. The view budget is pooled across all
// recipients: once ViewCount reaches MaxViews the message is hidden from every
// recipient who has not already viewed it. The disappearance timer starts at
// the viewer's own first view, never at send time.
func IsExpiredFor(m models.Message, viewerID string, now time.Time) bool {
	if viewerID == m.SenderID {
		return false
	}
	view, viewed := m.ViewOf(viewerID)
	if m.MaxViews != nil && m.ViewCount >= *m.MaxViews && !viewed {
		return true
	}
	if m.DisappearAfterSeconds != nil && viewed {
		return !now.Before(view.ViewedAt.Add(window(m)))
	}
	return false
}

// ExpiresAt returns the instant the message disappears for viewerID, or nil
// when no timer is running for that viewer.
func ExpiresAt(m models.Message, viewerID string) *time.Time {
	if viewerID == m.SenderID || m.DisappearAfterSeconds == nil {
		return nil
	}
	view, viewed := m.ViewOf(viewerID)
	if !viewed {
		return nil
	}
	at := view.ViewedAt.Add(window(m))
	return &at
}

// VisibleContent returns the content shown to viewerID: the stored content
// while visible, ExpiredPlaceholder afterwards. Storage keeps the content.
func VisibleContent(m models.Message, viewerID string, now time.Time) string {
	if IsExpiredFor(m, viewerID, now) {
		return ExpiredPlaceholder
	}
	return m.Content
}

// CheckViewable decides whether recordView may add viewerID to m. It returns
// false with no error when the view is already counted, and ErrMessageExpired
// when counting it would let an expired viewer see the message again.
func CheckViewable(m models.Message, viewerID string, now time.Time) (bool, error) {
	if _, viewed := m.ViewOf(viewerID); viewed {
		return false, nil
	}
	if IsExpiredFor(m, viewerID, now) {
		return false, apperr.ErrMessageExpired
	}
	return true, nil
}

// Project renders m for viewerID. Media references are hidden together with
// the content, and only the sender sees who viewed the message.
func Project(m models.Message, viewerID string, now time.Time) models.VisibleMessage {
	expired := IsExpiredFor(m, viewerID, now)
	_, viewed := m.ViewOf(viewerID)

	vm := models.VisibleMessage{
		ID:                    m.ID,
		ChatID:                m.ChatID,
		SenderID:              m.SenderID,
		Type:                  m.Type,
		Content:               m.Content,
		MediaRef:              m.MediaRef,
		CreatedAt:             m.CreatedAt,
		MaxViews:              m.MaxViews,
		DisappearAfterSeconds: m.DisappearAfterSeconds,
		ViewCount:             m.ViewCount,
		Expired:               expired,
		Viewed:                viewed || viewerID == m.SenderID,
		ExpiresAt:             ExpiresAt(m, viewerID),
	}
	if expired {
		vm.Content = ExpiredPlaceholder
		vm.MediaRef = nil
	}
	if viewerID == m.SenderID {
		vm.ViewedBy = m.ViewedBy
	}
	return vm
}

// Preview is the one-line chat-list rendering of m for viewerID.
func Preview(m models.Message, viewerID string, now time.Time) string {
	if IsExpiredFor(m, viewerID, now) {
		return ExpiredPlaceholder
	}
	switch m.Type {
	case models.MessageImage:
		return "[image]"
	case models.MessageVideo:
		return "[video]"
	}
	return truncate(m.Content, previewRunes)
}

func window(m models.Message) time.Duration {
	return time.Duration(*m.DisappearAfterSeconds) * time.Second
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
