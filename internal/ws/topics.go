package ws

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic kinds, as published on the change stream.
const (
	KindChat        = "chat"
	KindUserChats   = "chats"
	KindUserFriends = "friends"
)

func ChatTopic(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}

func UserChatsTopic(userID string) string {
	return "user:" + userID + ":chats"
}

func UserFriendsTopic(userID string) string {
	return "user:" + userID + ":friends"
}

// BaseTopics are the topics a session holds for its whole lifetime.
func BaseTopics(userID string) []string {
	return []string{UserChatsTopic(userID), UserFriendsTopic(userID)}
}

// ParseTopic splits a topic into its kind and, for chat topics, the chat id.
func ParseTopic(topic string) (string, int64, error) {
	if rest, ok := strings.CutPrefix(topic, "chat:"); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return "", 0, fmt.Errorf("bad chat topic %q", topic)
		}
		return KindChat, id, nil
	}
	if rest, ok := strings.CutPrefix(topic, "user:"); ok {
		switch {
		case strings.HasSuffix(rest, ":chats") && len(rest) > len(":chats"):
			return KindUserChats, 0, nil
		case strings.HasSuffix(rest, ":friends") && len(rest) > len(":friends"):
			return KindUserFriends, 0, nil
		}
	}
	return "", 0, fmt.Errorf("unknown topic %q", topic)
}
