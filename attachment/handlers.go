package attachment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chatv2/chatv2-server/framing/jsonframe"
	"github.com/chatv2/chatv2-server/repo"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MaxBlobHeaderBytes bounds the small JSON header every attachment stream
// sends before its raw payload bytes.
const MaxBlobHeaderBytes = 4 * 1024

// blobHeader is the per-stream descriptor a client sends immediately after
// the streamhello preface, naming the key the payload should be stored
// under (an avatar's user id, or a message's id for FILE/IMAGE/VOICE).
type blobHeader struct {
	Key string `json:"key"`
}

// Handlers wires attachment streams into the persistence layer: uploaded
// avatar bytes update UserProfile.AvatarData with a blob-store key, and
// uploaded file/image/voice bytes are stored under the sending message's
// id for USER_GET_PROFILE_REQ / MESSAGE_HISTORY_REQ readers to later fetch
// via Get.
type Handlers struct {
	Users repo.UserRepository
	Blobs BlobStore
}

// NewHandlers builds a Handlers bound to repos and store.
func NewHandlers(users repo.UserRepository, blobs BlobStore) *Handlers {
	return &Handlers{Users: users, Blobs: blobs}
}

// Handle is a StreamHandler: read the blobHeader, copy the remaining stream
// bytes into the blob store under "<kind>/<key>", and apply any
// kind-specific side effect (avatar -> UserProfile.AvatarData).
func (h *Handlers) Handle(userID string, kind Kind, stream io.ReadWriteCloser) {
	hdr, err := readBlobHeader(stream)
	if err != nil {
		log.Debug().Err(err).Str("kind", string(kind)).Msg("attachment: bad blob header")
		return
	}
	key := fmt.Sprintf("%s/%s", kind, hdr.Key)

	n, err := h.Blobs.Put(context.Background(), key, stream)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("attachment: blob store rejected upload")
		return
	}
	log.Info().Str("key", key).Int64("bytes", n).Str("user", userID).Msg("attachment: stored blob")

	if kind == KindAvatar {
		h.applyAvatar(userID, hdr.Key, key)
	}
}

func (h *Handlers) applyAvatar(callerUserID, targetUserID, blobKey string) {
	if callerUserID != targetUserID {
		// Only a user may set their own avatar; a mismatched key is silently
		// stored but never linked to a profile.
		return
	}
	id, err := uuid.Parse(targetUserID)
	if err != nil {
		return
	}
	ctx := context.Background()
	user, err := h.Users.FindByID(ctx, id)
	if err != nil {
		log.Debug().Err(err).Str("user", targetUserID).Msg("attachment: avatar target user not found")
		return
	}
	user.AvatarData = blobKey
	user.UpdatedAt = time.Now()
	if err := h.Users.Save(ctx, user); err != nil {
		log.Warn().Err(err).Str("user", targetUserID).Msg("attachment: failed to persist avatar reference")
	}
}

func readBlobHeader(r io.Reader) (blobHeader, error) {
	b, err := jsonframe.ReadJSONFrame(r, MaxBlobHeaderBytes)
	if err != nil {
		return blobHeader{}, err
	}
	var h blobHeader
	if err := json.Unmarshal(b, &h); err != nil {
		return blobHeader{}, err
	}
	return h, nil
}
