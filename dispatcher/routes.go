package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/boardgameai/mctsd/game"
	"github.com/boardgameai/mctsd/runner"
)

var routes = map[string]routeFunc{
	"echo":                  echoRoute,
	"add_game":              addGameRoute,
	"add_state":             addStateRoute,
	"add_player":            addPlayerRoute,
	"add_action_generator":  addActionGeneratorRoute,
	"remove_game":           removeGameRoute,
	"remove_state":          removeStateRoute,
	"remove_player":         removePlayerRoute,
	"remove_action_generator": removeActionGeneratorRoute,
	"generate_actions":      generateActionsRoute,
	"take_action":           takeActionRoute,
	"start_thinking":        startThinkingRoute,
	"stop_thinking":         stopThinkingRoute,
	"get_best_action":       getBestActionRoute,
	"query_details":         queryDetailsRoute,
	"run_games":             runGamesRoute,
}

func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return errors.Wrap(ErrSchema, "data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(ErrSchema, err.Error())
	}
	return nil
}

type emptyResponse struct{}

// echo request/response: {sleepTime?: seconds, data: any} -> the same data,
// after sleeping sleepTime seconds. Stands in for the out-of-scope "sleep"
// collaborator used by scenario 6's concurrency test.
type echoRequest struct {
	SleepTime float64         `json:"sleepTime"`
	Data      json.RawMessage `json:"data"`
}

func echoRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req echoRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if req.SleepTime > 0 {
		select {
		case <-time.After(time.Duration(req.SleepTime * float64(time.Second))):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return req.Data, nil
}

type addGameRequest struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data"`
}

type addGameResponse struct {
	GameID uint32 `json:"gameID"`
}

func addGameRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req addGameRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.validate.Struct(req); err != nil {
		return nil, errors.Wrap(ErrSchema, err.Error())
	}
	id, err := d.Store.AddGame(req.Type, req.Data)
	if err != nil {
		return nil, err
	}
	return addGameResponse{GameID: id}, nil
}

type addStateRequest struct {
	GameID uint32          `json:"gameID" validate:"required"`
	Data   json.RawMessage `json:"data"`
}

type addStateResponse struct {
	StateID    uint32          `json:"stateID"`
	State      json.RawMessage `json:"state"`
	NextPlayer int             `json:"nextPlayer"`
}

func addStateRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req addStateRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.validate.Struct(req); err != nil {
		return nil, errors.Wrap(ErrSchema, err.Error())
	}
	id, s, err := d.Store.AddState(req.GameID, req.Data)
	if err != nil {
		return nil, err
	}
	stateJSON, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	next, err := d.Store.NextPlayer(req.GameID, id)
	if err != nil {
		return nil, err
	}
	return addStateResponse{StateID: id, State: stateJSON, NextPlayer: next}, nil
}

type addPlayerRequest struct {
	GameID  uint32          `json:"gameID" validate:"required"`
	StateID uint32          `json:"stateID" validate:"required"`
	Type    string          `json:"type" validate:"required"`
	Data    json.RawMessage `json:"data"`
}

type addPlayerResponse struct {
	PlayerID uint32 `json:"playerID"`
}

func addPlayerRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req addPlayerRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.validate.Struct(req); err != nil {
		return nil, errors.Wrap(ErrSchema, err.Error())
	}
	id, err := d.Store.AddPlayer(req.GameID, req.StateID, req.Type, req.Data)
	if err != nil {
		return nil, err
	}
	return addPlayerResponse{PlayerID: id}, nil
}

type addActionGeneratorRequest struct {
	GameID  uint32          `json:"gameID" validate:"required"`
	StateID uint32          `json:"stateID" validate:"required"`
	Type    string          `json:"type" validate:"required"`
	Data    json.RawMessage `json:"data"`
}

type addActionGeneratorResponse struct {
	ActionGeneratorID uint32 `json:"actionGeneratorID"`
}

func addActionGeneratorRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req addActionGeneratorRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.validate.Struct(req); err != nil {
		return nil, errors.Wrap(ErrSchema, err.Error())
	}
	id, err := d.Store.AddActionGenerator(req.GameID, req.StateID, req.Type, req.Data)
	if err != nil {
		return nil, err
	}
	return addActionGeneratorResponse{ActionGeneratorID: id}, nil
}

type removeGameRequest struct {
	GameID uint32 `json:"gameID" validate:"required"`
}

func removeGameRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req removeGameRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	d.Store.RemoveGame(req.GameID)
	return emptyResponse{}, nil
}

type removeStateRequest struct {
	GameID  uint32 `json:"gameID" validate:"required"`
	StateID uint32 `json:"stateID" validate:"required"`
}

func removeStateRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req removeStateRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.Store.RemoveState(req.GameID, req.StateID); err != nil {
		return nil, err
	}
	return emptyResponse{}, nil
}

type removePlayerRequest struct {
	GameID   uint32 `json:"gameID" validate:"required"`
	StateID  uint32 `json:"stateID" validate:"required"`
	PlayerID uint32 `json:"playerID" validate:"required"`
}

func removePlayerRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req removePlayerRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.Store.RemovePlayer(req.GameID, req.StateID, req.PlayerID); err != nil {
		return nil, err
	}
	return emptyResponse{}, nil
}

type removeActionGeneratorRequest struct {
	GameID            uint32 `json:"gameID" validate:"required"`
	StateID           uint32 `json:"stateID" validate:"required"`
	ActionGeneratorID uint32 `json:"actionGeneratorID" validate:"required"`
}

func removeActionGeneratorRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req removeActionGeneratorRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.Store.RemoveActionGenerator(req.GameID, req.StateID, req.ActionGeneratorID); err != nil {
		return nil, err
	}
	return emptyResponse{}, nil
}

type generateActionsRequest struct {
	GameID            uint32 `json:"gameID" validate:"required"`
	StateID           uint32 `json:"stateID" validate:"required"`
	ActionGeneratorID uint32 `json:"actionGeneratorID" validate:"required"`
}

type generateActionsResponse struct {
	Actions []game.Action `json:"actions"`
}

func generateActionsRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req generateActionsRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	actions, err := d.Store.GenerateActions(req.GameID, req.StateID, req.ActionGeneratorID)
	if err != nil {
		return nil, err
	}
	return generateActionsResponse{Actions: actions}, nil
}

type takeActionRequest struct {
	GameID  uint32          `json:"gameID" validate:"required"`
	StateID uint32          `json:"stateID" validate:"required"`
	Action  json.RawMessage `json:"action" validate:"required"`
}

type takeActionResponse struct {
	Finished   bool            `json:"finished"`
	State      json.RawMessage `json:"state"`
	NextPlayer *int            `json:"nextPlayer,omitempty"`
	Result     []float32       `json:"result,omitempty"`
}

func takeActionRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req takeActionRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	g, err := d.Store.Game(req.GameID)
	if err != nil {
		return nil, err
	}
	action, err := g.CreateAction(req.Action)
	if err != nil {
		return nil, err
	}

	result, terminal, err := d.Store.TakeAction(req.GameID, req.StateID, action)
	if err != nil {
		return nil, errors.Wrap(err, "invalid action")
	}

	s, err := d.Store.State(req.GameID, req.StateID)
	if err != nil {
		return nil, err
	}
	stateJSON, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	resp := takeActionResponse{Finished: terminal, State: stateJSON}
	if terminal {
		resp.Result = result
	} else {
		next, err := d.Store.NextPlayer(req.GameID, req.StateID)
		if err != nil {
			return nil, err
		}
		resp.NextPlayer = &next
	}
	return resp, nil
}

type playerTargetRequest struct {
	GameID   uint32 `json:"gameID" validate:"required"`
	StateID  uint32 `json:"stateID" validate:"required"`
	PlayerID uint32 `json:"playerID" validate:"required"`
}

func startThinkingRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req playerTargetRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.Store.StartThinking(req.GameID, req.StateID, req.PlayerID); err != nil {
		return nil, err
	}
	return emptyResponse{}, nil
}

func stopThinkingRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req playerTargetRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.Store.StopThinking(req.GameID, req.StateID, req.PlayerID); err != nil {
		return nil, err
	}
	return emptyResponse{}, nil
}

type getBestActionRequest struct {
	GameID       uint32   `json:"gameID" validate:"required"`
	StateID      uint32   `json:"stateID" validate:"required"`
	PlayerID     uint32   `json:"playerID" validate:"required"`
	MaxThinkTime *float64 `json:"maxThinkTime"`
}

type getBestActionResponse struct {
	Action game.Action `json:"action"`
}

func getBestActionRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req getBestActionRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	var maxThinkTime *time.Duration
	if req.MaxThinkTime != nil {
		dur := time.Duration(*req.MaxThinkTime * float64(time.Second))
		maxThinkTime = &dur
	}
	action, err := d.Store.GetBestAction(req.GameID, req.StateID, req.PlayerID, maxThinkTime)
	if err != nil {
		return nil, err
	}
	return getBestActionResponse{Action: action}, nil
}

type queryDetailsRequest struct {
	GameID   uint32          `json:"gameID" validate:"required"`
	StateID  uint32          `json:"stateID" validate:"required"`
	PlayerID uint32          `json:"playerID" validate:"required"`
	Data     json.RawMessage `json:"data"`
}

func queryDetailsRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req queryDetailsRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	resp, err := d.Store.QueryDetails(req.GameID, req.StateID, req.PlayerID, req.Data)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		resp = json.RawMessage(`{}`)
	}
	return resp, nil
}

type runGamesPlayerSpec struct {
	Type                    string          `json:"type" validate:"required"`
	Data                    json.RawMessage `json:"data"`
	AllowBackgroundThinking bool            `json:"allowBackgroundThinking"`
	MaxThinkTime            *float64        `json:"maxThinkTime"`
}

type runGamesRequest struct {
	Rounds   int    `json:"rounds" validate:"gt=0"`
	Parallel bool   `json:"parallel"`
	Game     struct {
		Type string          `json:"type" validate:"required"`
		Data json.RawMessage `json:"data"`
	} `json:"game"`
	Players []runGamesPlayerSpec `json:"players" validate:"required,min=1"`
}

type runGamesResponse struct {
	Results     [][]float32 `json:"results"`
	FinalResult []float32   `json:"finalResult"`
}

func runGamesRoute(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error) {
	var req runGamesRequest
	if err := unmarshalData(data, &req); err != nil {
		return nil, err
	}
	if err := d.validate.Struct(req); err != nil {
		return nil, errors.Wrap(ErrSchema, err.Error())
	}

	specs := make([]runner.PlayerSpec, len(req.Players))
	for i, p := range req.Players {
		spec := runner.PlayerSpec{
			Type:                    p.Type,
			Data:                    p.Data,
			AllowBackgroundThinking: p.AllowBackgroundThinking,
		}
		if p.MaxThinkTime != nil {
			dur := time.Duration(*p.MaxThinkTime * float64(time.Second))
			spec.MaxThinkTime = &dur
		}
		specs[i] = spec
	}

	results, final, err := runner.RunGames(ctx, req.Game.Type, req.Game.Data, req.Rounds, req.Parallel, specs)
	if err != nil {
		return nil, err
	}
	return runGamesResponse{Results: results, FinalResult: final}, nil
}
