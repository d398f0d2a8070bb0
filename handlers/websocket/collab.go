package websocket

import (
	"context"
	"fmt"
	"notes-collab/collab"
	"reflect"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type ackInvoker func(err error, payload map[string]any)

var inboundEvents = []string{
	collab.EventAuthenticate,
	collab.EventJoin,
	collab.EventLeave,
	collab.EventSubmitEdit,
	collab.EventCursorMove,
}

// socketSender adapts a socket.io socket to collab.Sender.
type socketSender struct {
	socket *socketio.Socket
}

func (s *socketSender) Emit(event string, payload any) error {
	return s.socket.Emit(event, payload)
}

func (s *socketSender) Close() {
	s.socket.Disconnect(true)
}

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

// corsOrigin lists the browser origins allowed to open a channel. Without
// configuration only local development origins are accepted.
func corsOrigin(allowed []string) any {
	if len(allowed) == 0 {
		return []any{"tauri://localhost", localhostOrigin}
	}
	origins := make([]any, 0, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		origins = append(origins, o)
	}
	return origins
}

// SetupSocketIO builds the socket.io server that carries collaboration
// channels.
func SetupSocketIO(hub *collab.Hub, allowedOrigins []string) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      corsOrigin(allowedOrigins),
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		id := string(socket.Id())
		conn := hub.ConnectWithCredential(id, &socketSender{socket: socket}, handshakeToken(socket))
		logrus.WithField("connection_id", id).Debug("Socket connected")

		for _, event := range inboundEvents {
			event := event
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(event, func(datas ...any) {
				ack, args := extractAck(datas)
				err := hub.Handle(context.Background(), conn, event, args)
				respondWithAck(ack, makeAckPayload(err), err)
			})
		}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(datas ...any) {
			hub.Disconnect(conn)
			socket.RemoveAllListeners("")
		})
	})

	return srv
}

func handshakeToken(socket *socketio.Socket) string {
	return tokenFromAuth(socket.Handshake().Auth)
}

// tokenFromAuth reads {token: "..."} from a socket.io handshake auth
// payload.
func tokenFromAuth(auth any) string {
	switch v := auth.(type) {
	case map[string]any:
		token, _ := v["token"].(string)
		return token
	case map[string]string:
		return v["token"]
	default:
		return ""
	}
}

func makeAckPayload(err error) map[string]any {
	response := map[string]any{
		"status": "ok",
	}

	if err != nil {
		response["status"] = "error"
		response["error"] = err.Error()
		if kind := collab.KindOf(err); kind != "" {
			response["kind"] = string(kind)
		}
	}

	return response
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	candidate := datas[len(datas)-1]
	ack = wrapAck(candidate)
	if ack == nil {
		return nil, datas
	}

	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		args := buildAckArgs(typ, err, payload)
		if typ.IsVariadic() {
			value.CallSlice(args)
			return
		}
		value.Call(args)
	}
}

func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	if numIn > 0 && typ.In(0).Kind() == reflect.Slice {
		// func([]any, error) and func(...any) acks take the response data
		// as a list.
		data := reflect.MakeSlice(typ.In(0), 0, 1)
		args[0] = reflect.Append(data, coerceValue(payload, typ.In(0).Elem()))
		for i := 1; i < numIn; i++ {
			args[i] = reflect.Zero(typ.In(i))
		}
		return args
	}

	for i := 0; i < numIn; i++ {
		paramType := typ.In(i)
		var argValue any

		switch {
		case numIn == 1:
			argValue = payload
		case i == 0:
			argValue = err
		case i == 1:
			argValue = payload
		default:
			argValue = nil
		}

		args[i] = coerceValue(argValue, paramType)
	}

	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(targetType) {
		return rv
	}

	if rv.Type().ConvertibleTo(targetType) {
		return rv.Convert(targetType)
	}

	if targetType.Kind() == reflect.Interface {
		if rv.Type().Implements(targetType) || targetType.NumMethod() == 0 {
			return rv
		}
	}

	if targetType.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}

	if targetType.Kind() == reflect.Map && targetType.Key().Kind() == reflect.String {
		if payload, ok := value.(map[string]any); ok {
			return convertMap(payload, targetType)
		}
	}

	return reflect.Zero(targetType)
}

func convertMap(source map[string]any, targetType reflect.Type) reflect.Value {
	result := reflect.MakeMapWithSize(targetType, len(source))
	for key, val := range source {
		keyValue := reflect.ValueOf(key).Convert(targetType.Key())
		valueValue := reflect.ValueOf(val)
		if !valueValue.Type().AssignableTo(targetType.Elem()) {
			if valueValue.Type().ConvertibleTo(targetType.Elem()) {
				valueValue = valueValue.Convert(targetType.Elem())
			} else if targetType.Elem().Kind() != reflect.Interface {
				continue
			}
		}
		result.SetMapIndex(keyValue, valueValue)
	}
	return result
}

func respondWithAck(ack ackInvoker, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
	}
}
