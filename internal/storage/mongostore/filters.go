package mongostore

import (
	"time"

	"socialdm/backend/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
)

func listConversationsFilter(userID string, filter storage.ConversationFilter) bson.M {
	f := bson.M{"participants": userID}
	switch filter {
	case storage.FilterIncomingRequests:
		f["isMessageRequest"] = true
		f["requestAccepted"] = false
		f["requestFrom"] = bson.M{"$ne": userID}
	default:
		f["isMessageRequest"] = false
	}
	return f
}

func acceptRequestFilter(id, accepterID string) bson.M {
	return bson.M{
		"_id":              id,
		"participants":     accepterID,
		"isMessageRequest": true,
		"requestAccepted":  false,
		"requestFrom":      bson.M{"$ne": accepterID},
	}
}

func listMessagesFilter(conversationID, viewerID string) bson.M {
	return bson.M{
		"conversationId": conversationID,
		"deletedFor":     bson.M{"$ne": viewerID},
	}
}

func markReadFilter(conversationID, readerID string) bson.M {
	return bson.M{
		"conversationId": conversationID,
		"senderId":       bson.M{"$ne": readerID},
		"readBy.userId":  bson.M{"$ne": readerID},
	}
}

func markReadUpdate(readerID string, at time.Time) bson.M {
	return bson.M{
		"$push": bson.M{
			"readBy": bson.M{"userId": readerID, "readAt": at},
		},
	}
}

func deletedForUpdate(userID string) bson.M {
	return bson.M{"$addToSet": bson.M{"deletedFor": userID}}
}
