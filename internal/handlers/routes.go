package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes wires the authenticated API.
func RegisterRoutes(r gin.IRoutes, chats *ChatHandler, friends *FriendHandler, sync *SyncHandler) {
	r.GET("/chats", chats.ListChats)
	r.POST("/chats/direct", chats.StartDirectChat)
	r.POST("/chats/group", chats.CreateGroupChat)
	r.GET("/chats/:chat_id", chats.GetChat)
	r.POST("/chats/:chat_id/leave", chats.LeaveChat)
	r.GET("/chats/:chat_id/messages", chats.ListMessages)
	r.POST("/chats/:chat_id/messages", chats.PostMessage)
	r.GET("/messages/:message_id", chats.GetMessage)
	r.POST("/messages/:message_id/view", chats.ViewMessage)
	r.GET("/messages/:message_id/content", chats.GetMessageContent)

	r.GET("/friends", friends.ListFriends)
	r.GET("/friends/requests", friends.ListPending)
	r.POST("/friends/requests", friends.SendRequest)
	r.POST("/friends/requests/:request_id/respond", friends.Respond)

	r.GET("/sync", sync.FullResync)
	r.POST("/media/upload-url", sync.UploadURL)
}
