package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/confera/backend/internal/polling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection. One connection can join
// several conference rooms; rooms is guarded by the hub's mutex.
type Client struct {
	ID     string
	UserID uuid.UUID
	rooms  map[string]struct{}
	hub    *Hub
	co     *polling.Coordinator
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The token
// comes in as a query parameter since browsers cannot set headers on
// WebSocket dials.
func ServeWs(hub *Hub, co *polling.Coordinator, logger *zap.Logger, validate func(token string) (userID uuid.UUID, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userID, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			UserID: userID,
			rooms:  make(map[string]struct{}),
			hub:    hub,
			co:     co,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			logger: logger,
		}
		go client.writePump()
		client.readPump()
	}
}

// sendToMe queues an event for this connection only.
func (c *Client) sendToMe(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

// sendErr maps an error to the protocol error envelope and sends it to the
// originating connection only.
func (c *Client) sendErr(err error) {
	var pe *polling.Error
	if !errors.As(err, &pe) {
		c.logger.Error("unhandled protocol error", zap.String("user_id", c.UserID.String()), zap.Error(err))
		pe = polling.ErrInternal
	}
	c.sendToMe(polling.EventError, polling.ErrorPayload{
		Code:      pe.Code,
		Message:   pe.Message,
		Timestamp: time.Now(),
	})
}

func (c *Client) readPump() {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c.co.Disconnect(ctx, c.UserID)
		cancel()
		c.hub.LeaveAll(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Event {
	case polling.EventConferenceJoin:
		var p polling.ConferenceRef
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ConferenceID == uuid.Nil {
			c.sendErr(polling.ErrInvalidRequest)
			return
		}
		res, err := c.co.Join(ctx, p.ConferenceID, c.UserID)
		if err != nil {
			c.sendErr(err)
			return
		}
		c.hub.Join(c, polling.Room(p.ConferenceID))
		if res.Role == polling.RoleHost {
			c.hub.Join(c, polling.HostRoom(p.ConferenceID))
		}
		c.sendToMe(polling.EventConferenceJoined, res)

	case polling.EventConferenceLeave:
		var p polling.ConferenceRef
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ConferenceID == uuid.Nil {
			c.sendErr(polling.ErrInvalidRequest)
			return
		}
		if err := c.co.Leave(ctx, p.ConferenceID, c.UserID); err != nil {
			c.sendErr(err)
			return
		}
		c.hub.Leave(c, polling.Room(p.ConferenceID))
		c.hub.Leave(c, polling.HostRoom(p.ConferenceID))

	case polling.EventQuestionPush:
		var p polling.PushLivePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ConferenceID == uuid.Nil || p.QuestionID == uuid.Nil {
			c.sendErr(polling.ErrInvalidRequest)
			return
		}
		if err := c.co.PushLive(ctx, p.ConferenceID, c.UserID, p.QuestionID, p.Duration); err != nil {
			c.sendErr(err)
		}

	case polling.EventQuestionClose:
		var p polling.QuestionRef
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ConferenceID == uuid.Nil || p.QuestionID == uuid.Nil {
			c.sendErr(polling.ErrInvalidRequest)
			return
		}
		if err := c.co.CloseQuestion(ctx, p.ConferenceID, c.UserID, p.QuestionID); err != nil {
			c.sendErr(err)
		}

	case polling.EventPollJoin:
		var p polling.QuestionRef
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ConferenceID == uuid.Nil || p.QuestionID == uuid.Nil {
			c.sendErr(polling.ErrInvalidRequest)
			return
		}
		if err := c.co.JoinPoll(ctx, p.ConferenceID, c.UserID, p.QuestionID); err != nil {
			c.sendErr(err)
		}

	case polling.EventPollVote:
		var p polling.VotePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ConferenceID == uuid.Nil || p.QuestionID == uuid.Nil {
			c.sendErr(polling.ErrInvalidRequest)
			return
		}
		ack, err := c.co.Vote(ctx, p.ConferenceID, c.UserID, p.QuestionID, p.OptionKey)
		if err != nil {
			c.sendErr(err)
			return
		}
		c.sendToMe(polling.EventPollVoteAccepted, ack)

	case polling.EventVoteSubmit:
		var p polling.SubmitVotePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ConferenceID == uuid.Nil || p.QuestionID == uuid.Nil {
			c.sendErr(polling.ErrInvalidRequest)
			return
		}
		ack, err := c.co.SubmitVote(ctx, p.ConferenceID, c.UserID, p.QuestionID, p.SelectedOption)
		if err != nil {
			c.sendErr(err)
			return
		}
		c.sendToMe(polling.EventVoteAccepted, ack)

	case polling.EventSlideChange:
		var p polling.SlideChangePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ConferenceID == uuid.Nil || p.SlideIndex < 0 {
			c.sendErr(polling.ErrInvalidRequest)
			return
		}
		if err := c.co.SlideChange(ctx, p.ConferenceID, c.UserID, p.SlideIndex); err != nil {
			c.sendErr(err)
		}

	default:
		// ignore unknown events
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
