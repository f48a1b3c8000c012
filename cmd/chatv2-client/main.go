// Command chatv2-client is a minimal demo client exercising the CHAT wire
// protocol end to end: AUTH_HANDSHAKE -> AUTH_KEY_EXCHANGE -> AUTH_LOGIN (or
// AUTH_REGISTER) -> MESSAGE_SEND, printing any MESSAGE_RECEIVE pushes it
// sees meanwhile. It exists to give a human something runnable against
// chatv2-server; it is not the reference client implementation.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatv2/chatv2-server/cryptosuite"
	"github.com/chatv2/chatv2-server/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatv2-client",
	Short: "Demo client for the chatv2 chat protocol",
	RunE:  runClient,
}

var (
	flagAddr     string
	flagUsername string
	flagPassword string
	flagRegister bool
	flagFullName string
	flagChatID   string
	flagMessage  string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAddr, "addr", "127.0.0.1:8080", "chatv2-server address")
	flags.StringVar(&flagUsername, "username", "", "account username")
	flags.StringVar(&flagPassword, "password", "", "account password")
	flags.BoolVar(&flagRegister, "register", false, "register the account before logging in")
	flags.StringVar(&flagFullName, "full-name", "", "full name to register with (requires --register)")
	flags.StringVar(&flagChatID, "chat-id", "", "chat id to send --message to, once logged in")
	flags.StringVar(&flagMessage, "message", "", "message content to send to --chat-id")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute root command")
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if flagUsername == "" || flagPassword == "" {
		return fmt.Errorf("chatv2-client: --username and --password are required")
	}

	nc, err := net.Dial("tcp", flagAddr)
	if err != nil {
		return err
	}
	defer nc.Close()

	sess, err := newClientSession(nc)
	if err != nil {
		return err
	}

	if err := sess.handshakeAndExchange(); err != nil {
		return err
	}
	log.Info().Msg("client: session key established")

	if flagRegister {
		if err := sess.register(flagUsername, flagPassword, flagFullName); err != nil {
			return err
		}
		log.Info().Str("username", flagUsername).Msg("client: registered")
	}

	userID, err := sess.login(flagUsername, flagPassword)
	if err != nil {
		return err
	}
	log.Info().Str("userId", userID.String()).Msg("client: logged in")

	go sess.readLoop(ctx)

	if flagChatID != "" && flagMessage != "" {
		chatID, err := uuid.Parse(flagChatID)
		if err != nil {
			return fmt.Errorf("chatv2-client: bad --chat-id: %w", err)
		}
		if err := sess.sendMessage(chatID, userID, flagMessage); err != nil {
			return err
		}
		log.Info().Msg("client: message sent")
	}

	<-ctx.Done()
	return nil
}

// clientSession wraps one TCP connection through the plaintext handshake,
// the RSA-OAEP key exchange, and the resulting AES-GCM session cipher.
type clientSession struct {
	nc      net.Conn
	dec     *wire.Decoder
	cipher  *cryptosuite.SessionCipher
	msgID   uint64
}

func newClientSession(nc net.Conn) (*clientSession, error) {
	return &clientSession{nc: nc, dec: wire.NewDecoder(bufio.NewReader(nc))}, nil
}

func (s *clientSession) nextMessageID() uint64 {
	s.msgID++
	return s.msgID
}

func (s *clientSession) nowMillis() uint64 { return uint64(time.Now().UnixMilli()) }

// handshakeAndExchange performs AUTH_HANDSHAKE then AUTH_KEY_EXCHANGE,
// binding s.cipher to a freshly generated per-connection AES-256 key
// wrapped under the server's advertised RSA public key.
func (s *clientSession) handshakeAndExchange() error {
	req := wire.Packet{Type: wire.MsgAuthHandshakeReq, MessageID: s.nextMessageID(), Timestamp: s.nowMillis()}
	if err := s.send(req); err != nil {
		return err
	}
	resp, err := s.recvPlain()
	if err != nil {
		return err
	}
	if resp.Type != wire.MsgAuthHandshakeRes {
		return fmt.Errorf("chatv2-client: expected AUTH_HANDSHAKE_RES, got %v", resp.Type)
	}
	serverPub, err := cryptosuite.DecodePublicKeyDER(resp.Payload)
	if err != nil {
		return fmt.Errorf("chatv2-client: bad server public key: %w", err)
	}

	var sessionKey [32]byte
	if _, err := rand.Read(sessionKey[:]); err != nil {
		return err
	}
	wrapped, err := cryptosuite.WrapSessionKey(serverPub, sessionKey)
	if err != nil {
		return err
	}

	exReq := wire.Packet{Type: wire.MsgAuthKeyExchangeReq, MessageID: s.nextMessageID(), Timestamp: s.nowMillis(), Payload: wrapped}
	if err := s.send(exReq); err != nil {
		return err
	}
	exResp, err := s.recvPlain()
	if err != nil {
		return err
	}
	if exResp.Type != wire.MsgAuthKeyExchangeRes {
		return fmt.Errorf("chatv2-client: expected AUTH_KEY_EXCHANGE_RES, got %v", exResp.Type)
	}
	var ack struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(exResp.Payload, &ack); err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("chatv2-client: key exchange rejected: %s", ack.Error)
	}

	cipher, err := cryptosuite.NewSessionCipher(sessionKey)
	if err != nil {
		return err
	}
	s.cipher = cipher
	return nil
}

func (s *clientSession) register(username, password, fullName string) error {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
		"fullName": fullName,
	})
	resp, err := s.roundTrip(wire.MsgAuthRegisterReq, body)
	if err != nil {
		return err
	}
	if resp.Type != wire.MsgAuthRegisterRes {
		return errorFromResponse(resp)
	}
	return nil
}

func (s *clientSession) login(username, password string) (uuid.UUID, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	resp, err := s.roundTrip(wire.MsgAuthLoginReq, body)
	if err != nil {
		return uuid.Nil, err
	}
	if resp.Type != wire.MsgAuthLoginRes {
		return uuid.Nil, errorFromResponse(resp)
	}
	var out struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return uuid.Nil, err
	}
	return out.UserID, nil
}

func (s *clientSession) sendMessage(chatID, senderID uuid.UUID, content string) error {
	body, _ := json.Marshal(map[string]any{
		"chatId":   chatID,
		"senderId": senderID,
		"content":  content,
	})
	resp, err := s.roundTrip(wire.MsgMessageSendReq, body)
	if err != nil {
		return err
	}
	if resp.Type != wire.MsgMessageSendRes {
		return errorFromResponse(resp)
	}
	return nil
}

// readLoop drains pushed frames (MESSAGE_RECEIVE and friends) until ctx is
// canceled or the connection drops.
func (s *clientSession) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, err := s.dec.ReadPacket()
		if err != nil {
			log.Debug().Err(err).Msg("client: read loop stopped")
			return
		}
		payload, err := s.decrypt(pkt)
		if err != nil {
			log.Warn().Err(err).Msg("client: failed to decrypt pushed frame")
			continue
		}
		if pkt.Type == wire.MsgMessageReceive {
			fmt.Printf("%s\n", payload)
		}
	}
}

func (s *clientSession) roundTrip(msgType wire.MessageType, payload []byte) (wire.Packet, error) {
	sealed, err := s.cipher.Seal(payload, nil)
	if err != nil {
		return wire.Packet{}, err
	}
	req := wire.Packet{
		Type:      msgType,
		Flags:     wire.FlagEncrypted,
		MessageID: s.nextMessageID(),
		Timestamp: s.nowMillis(),
		Payload:   sealed,
	}
	if err := s.send(req); err != nil {
		return wire.Packet{}, err
	}
	resp, err := s.dec.ReadPacket()
	if err != nil {
		return wire.Packet{}, err
	}
	plain, err := s.decrypt(resp)
	if err != nil {
		return wire.Packet{}, err
	}
	resp.Payload = plain
	return resp, nil
}

func (s *clientSession) decrypt(pkt wire.Packet) ([]byte, error) {
	if !pkt.Flags.Has(wire.FlagEncrypted) {
		return pkt.Payload, nil
	}
	if s.cipher == nil {
		return nil, fmt.Errorf("chatv2-client: received encrypted frame with no session key bound")
	}
	return s.cipher.Open(pkt.Payload, nil)
}

func (s *clientSession) send(p wire.Packet) error {
	frame, err := wire.Encode(p)
	if err != nil {
		return err
	}
	_, err = s.nc.Write(frame)
	return err
}

// recvPlain reads a single unencrypted frame, used only during the
// handshake phase before a session cipher exists.
func (s *clientSession) recvPlain() (wire.Packet, error) {
	return s.dec.ReadPacket()
}

func errorFromResponse(pkt wire.Packet) error {
	if pkt.Type != wire.MsgError {
		return fmt.Errorf("chatv2-client: unexpected response type %v", pkt.Type)
	}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(pkt.Payload, &body); err != nil {
		return fmt.Errorf("chatv2-client: request failed (type=%v)", pkt.Type)
	}
	return fmt.Errorf("chatv2-client: request failed: %s: %s", body.Code, body.Error)
}
