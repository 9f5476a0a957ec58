//go:build linux

// Command mywebserver runs the epoll reactor: static files from
// ./resources plus the login and register actions backed by MySQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/MgJun-ux/MyWebServer/pkg/logger"
	"github.com/MgJun-ux/MyWebServer/pkg/server"
	"github.com/MgJun-ux/MyWebServer/pkg/sqlpool"
)

var (
	port = kingpin.Flag(
		"port",
		"Port to listen on (1024-65535).",
	).Default("1316").Int()
	trigMode = kingpin.Flag(
		"trig-mode",
		"Trigger mode 0-3: bit 0 edge-triggers connections, bit 1 the listener.",
	).Default("3").Int()
	timeoutMs = kingpin.Flag(
		"timeout",
		"Idle connection deadline in milliseconds, 0 disables the timer.",
	).Default("60000").Int()
	optLinger = kingpin.Flag(
		"linger",
		"Close gracefully with SO_LINGER.",
	).Default("false").Bool()

	sqlHost = kingpin.Flag(
		"sql.host",
		"MySQL host.",
	).Default("localhost").String()
	sqlPort = kingpin.Flag(
		"sql.port",
		"MySQL port.",
	).Default("3306").Int()
	sqlUser = kingpin.Flag(
		"sql.user",
		"MySQL user.",
	).Default("root").String()
	sqlPasswd = kingpin.Flag(
		"sql.passwd",
		"MySQL password.",
	).Default("root").String()
	sqlDB = kingpin.Flag(
		"sql.db",
		"Database holding the user table.",
	).Default("webserver").String()
	sqlPoolSize = kingpin.Flag(
		"sql.pool",
		"Database handles to keep open.",
	).Default("12").Int()

	threadCount = kingpin.Flag(
		"threads",
		"Worker goroutines for connection I/O.",
	).Default("6").Int()

	openLog = kingpin.Flag(
		"log",
		"Enable the log system.",
	).Default("true").Bool()
	logLevel = kingpin.Flag(
		"log.level",
		"Minimum level: 0 debug, 1 info, 2 warn, 3 error.",
	).Default("1").Int()
	logQueue = kingpin.Flag(
		"log.queue",
		"Async log queue capacity, 0 writes synchronously.",
	).Default("1024").Int()
)

func main() {
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	if *openLog {
		if err := logger.Init(logger.Level(*logLevel), "./log", ".log", *logQueue); err != nil {
			fmt.Fprintf(os.Stderr, "log init: %v\n", err)
			os.Exit(1)
		}
		defer logger.CloseDefault()
	}

	pool, err := sqlpool.Open(sqlpool.Config{
		Host:     *sqlHost,
		Port:     *sqlPort,
		User:     *sqlUser,
		Password: *sqlPasswd,
		DBName:   *sqlDB,
		Size:     *sqlPoolSize,
	})
	if err != nil {
		logger.Errorf("sql pool: %v", err)
		fmt.Fprintf(os.Stderr, "sql pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Infof("sql pool: %d handles", pool.Size())

	verify := func(name, password string, isLogin bool) (bool, error) {
		return pool.VerifyUser(context.Background(), name, password, isLogin)
	}

	srv, err := server.New(server.Config{
		Port:        *port,
		TrigMode:    *trigMode,
		TimeoutMs:   *timeoutMs,
		Linger:      *optLinger,
		ThreadCount: *threadCount,
	}, verify)
	if err != nil {
		logger.Errorf("server init: %v", err)
		fmt.Fprintf(os.Stderr, "server init: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Infof("signal received, shutting down")
		srv.Stop()
	}()

	srv.Run()
}
