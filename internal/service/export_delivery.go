package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/roster-gateway/internal/models"
)

// PartDelivery hands one archive part to its recipient.
type PartDelivery interface {
	Deliver(ctx context.Context, chatID, jobID int64, part models.ArchivePart, caption string) (models.DeliveredPart, error)
}

// ChatDelivery uploads parts as documents into the requester's chat.
type ChatDelivery struct {
	chat messenger
}

// NewChatDelivery constructs the document delivery.
func NewChatDelivery(chat messenger) *ChatDelivery {
	return &ChatDelivery{chat: chat}
}

// Deliver sends the part as a document with an HTML caption.
func (d *ChatDelivery) Deliver(ctx context.Context, chatID, jobID int64, part models.ArchivePart, caption string) (models.DeliveredPart, error) {
	if err := d.chat.SendDocument(ctx, chatID, part.Name, part.Data, caption); err != nil {
		return models.DeliveredPart{}, err
	}
	return models.DeliveredPart{Name: part.Name}, nil
}

type partStorage interface {
	Save(name string, data []byte) (string, error)
}

type urlSigner interface {
	Sign(jobID, relPath string) (string, time.Time, error)
}

// StorageDelivery keeps parts on local disk and posts a signed download link instead of
// the file, for parts the chat transport would refuse.
type StorageDelivery struct {
	chat        messenger
	storage     partStorage
	signer      urlSigner
	downloadURL string
}

// NewStorageDelivery constructs the delivery. downloadURL is the absolute or relative
// address of the download endpoint.
func NewStorageDelivery(chat messenger, storage partStorage, signer urlSigner, downloadURL string) *StorageDelivery {
	return &StorageDelivery{chat: chat, storage: storage, signer: signer, downloadURL: downloadURL}
}

// Deliver stores the part and sends its link.
func (d *StorageDelivery) Deliver(ctx context.Context, chatID, jobID int64, part models.ArchivePart, caption string) (models.DeliveredPart, error) {
	id := strconv.FormatInt(jobID, 10)
	rel, err := d.storage.Save(fmt.Sprintf("%s/%s/%s", id, uuid.NewString(), part.Name), part.Data)
	if err != nil {
		return models.DeliveredPart{}, fmt.Errorf("store part %s: %w", part.Name, err)
	}
	token, _, err := d.signer.Sign(id, rel)
	if err != nil {
		return models.DeliveredPart{}, fmt.Errorf("sign part %s: %w", part.Name, err)
	}
	link := d.downloadURL + "?token=" + url.QueryEscape(token)

	text := fmt.Sprintf("%s\n\n<a href=\"%s\">Скачать %s</a>", caption, link, part.Name)
	if _, err := d.chat.SendMessage(ctx, chatID, models.Rendering{Text: text, HTML: true}); err != nil {
		return models.DeliveredPart{}, err
	}
	return models.DeliveredPart{Name: part.Name, URL: link}, nil
}
