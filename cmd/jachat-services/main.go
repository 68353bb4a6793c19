package main

import (
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/folkengine/goname"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/justachat/jachat-services/audit"
	"github.com/justachat/jachat-services/auth"
	"github.com/justachat/jachat-services/command"
	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/moderation"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/services"
	"github.com/justachat/jachat-services/stats"
	"github.com/justachat/jachat-services/types"
	"github.com/justachat/jachat-services/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "ws service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	hubs     map[string]*ws.Hub = make(map[string]*ws.Hub)
	hubsLock sync.RWMutex

	globalConfig *config.Config
	store        persistence.Persister
	engine       *moderation.Engine
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()
	log.SetFlags(0)

	var err error
	globalConfig, err = config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	store, err = persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if store == nil {
		panic("no persistence configured")
	}
	defer store.Close()

	sink := audit.NewSink(store)
	engine = moderation.NewEngine(store, sink)
	registry := services.NewRegistry(store)
	aggregator := stats.NewAggregator(store)
	dispatcher := command.NewDispatcher(globalConfig, store, engine, registry, aggregator, sink)
	contexts := command.NewContextBuilder(store)

	channels, err := store.GetChannels()
	if err != nil {
		panic(err)
	}
	if len(channels) == 0 {
		// no channel in the db, create a default channel
		channel := &types.Channel{
			Id:        "default",
			Name:      "default",
			Tags:      make(map[string]string),
			CreatedAt: time.Now(),
		}
		if err := store.StoreChannel(*channel); err != nil {
			panic(err)
		}
		channels = []*types.Channel{channel}
	}

	for _, channel := range channels {
		globals.AppLogger.Debug("creating channel hub", "channel", channel.Name)
		hub := ws.NewHub(channel, globalConfig, store, engine, dispatcher, contexts, aggregator)
		hubs[channel.Name] = hub
		go hub.Run()
	}
	setupRoutes()
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(*addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

func setupRoutes() {
	router := mux.NewRouter()
	router.HandleFunc("/chat/{channel:[a-z][a-z0-9_-]+}", websocketHandler).Methods(http.MethodGet)
	http.Handle("/", router)
}

// remoteIP extracts the client address, preferring the first entry of
// X-Forwarded-For when the service runs behind a proxy.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Handle incoming websockets. K-lines and bans are enforced here, a matching
// connection is rejected before the upgrade.
func websocketHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	channelName := vars["channel"]
	if channelName == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var hub *ws.Hub
	hubsLock.RLock()
	if h, ok := hubs[channelName]; !ok {
		hubsLock.RUnlock()
		w.WriteHeader(http.StatusBadRequest)
		return
	} else {
		hubsLock.RUnlock()
		hub = h
	}

	ip := remoteIP(r)
	klined, err := engine.CheckKline(ip)
	if err != nil {
		globals.AppLogger.Error("could not check k-lines", "ip", ip, "error", err)
	}
	if klined {
		http.Error(w, "You are banned from this network.", http.StatusForbidden)
		return
	}

	userId := ""
	nick := ""
	vals := r.URL.Query()
	if idToken := vals.Get("id_token"); idToken != "" {
		if provider := vals.Get("provider"); provider != "" {
			userId, nick, _ = auth.Authenticate(idToken, provider, globalConfig)
		}
	}
	language := vals.Get("language")

	if userId == "" {
		nick = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
		userId = nick
	}
	if nick == "" {
		nick = userId
	}
	user := types.User{Id: userId}
	err = store.GetUser(&user)
	if err == persistence.ErrNotFound {
		user = types.User{
			Id:         userId,
			Nick:       nick,
			Role:       types.RoleUser,
			Language:   "en",
			Tags:       make(map[string]string),
			CreatedAt:  time.Now(),
			LastOnline: time.Now(),
		}
		if err := store.StoreUser(user); err != nil {
			globals.AppLogger.Error("could not store user", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	} else if err != nil {
		globals.AppLogger.Error("could not get user", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	banned, err := engine.IsBanned(user.Id)
	if err != nil {
		globals.AppLogger.Error("could not check ban", "user", user.Id, "error", err)
	}
	if banned {
		http.Error(w, "You are banned from this network.", http.StatusForbidden)
		return
	}
	roomBanned, err := engine.IsRoomBanned(hub.ChannelId(), user.Id)
	if err != nil {
		globals.AppLogger.Error("could not check room ban", "user", user.Id, "error", err)
	}
	if roomBanned {
		http.Error(w, "You are banned from this room.", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close() //nolint

	doneChan := make(chan struct{})
	c := ws.NewClient(hub, conn, &user, language, doneChan)

	hub.Register <- c
	defer func() {
		hub.Unregister <- c
	}()
	c.Add(2)
	go c.ReadLoop()
	go c.WriteLoop()

	loginEvent := types.NewEvent(hub.ChannelId(), &types.Source{User: &user, Origin: "user"}, "", types.EventTypeInfo, map[string]string{"action": "login"})
	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func(evt *types.Event, wg *sync.WaitGroup) {
		defer wg.Done()
		hub.BroadcastEvent <- evt
	}(loginEvent, wg)
	go c.SendEventHistory(hub.GetEventHistory(), wg)
	// make sure those are done before the send channel can be closed
	wg.Wait()
	<-doneChan
	globals.AppLogger.Info("connection closed", "user", user.Id)
}
