package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"liveserver/auth"      //トークン発行とユーザー管理
	"liveserver/broadcast" //ルーム状態のWebSocket配信
	"liveserver/database"  //設定、PostgreSQL/SQLiteとRedisの初期化
	"liveserver/lobby"     //ルームのライフサイクルと結果の集計
	"liveserver/screens"   //HTTPリクエストの処理
	"liveserver/utils"     //ロガーの初期化とCronジョブ(ルームの定期クリーンナップ)

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "config.json", "設定ファイルのパス")
	migrateOnly := flag.Bool("migrate", false, "マイグレーションだけを実行して終了する")
	flag.Parse()

	config, configErr := database.LoadConfig(*configPath)
	logger, err := utils.InitLogger(config.LogLevel) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ
	if configErr != nil {
		logger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(configErr))
	}

	// 非同期でデータベースとRedisの初期化
	var db *gorm.DB
	var rdb *redis.Client
	done := make(chan error, 2)

	go func() {
		var err error
		db, err = database.InitDatabase(config, logger)
		if err == nil {
			err = database.AutoMigrate(db)
		}
		done <- err
	}()

	go func() {
		var err error
		rdb, err = database.InitRedis(config, logger)
		if err != nil {
			// キャッシュなしでも動作するため起動は続ける
			logger.Warn("Redisを使わずに起動します", zap.Error(err))
			rdb = nil
		}
		done <- nil
	}()

	// 2つの初期化が完了するのを待つ
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			logger.Fatal("データベースの初期化に失敗しました", zap.Error(err))
		}
	}
	if *migrateOnly {
		logger.Info("マイグレーションが完了しました")
		closeAll(db, rdb, logger)
		return
	}

	hub := broadcast.NewHub(originChecker(config.AllowedOrigins), logger)
	coordinator := lobby.NewCoordinator(database.NewRoomStore(db), logger, lobby.WithNotifier(hub))
	if _, err := coordinator.Restore(context.Background()); err != nil {
		logger.Fatal("ルームの復元に失敗しました", zap.Error(err))
	}
	users := auth.NewService(db, rdb, auth.NewTokens(config.JWTSecret),
		time.Duration(config.TokenCacheTTLSeconds)*time.Second, logger)

	// クーロンスケジューラのセットアップと呼び出し
	scheduler, err := utils.CronCleaner(coordinator, config, logger)
	if err != nil {
		logger.Fatal("Cronジョブの登録に失敗しました", zap.Error(err))
	}

	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(config.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	//各HTTPリクエストのルーティング
	screens.RegisterRoutes(router, screens.Deps{
		Coordinator:     coordinator,
		Users:           users,
		Tokens:          users,
		Hub:             hub,
		DefaultCapacity: config.DefaultCapacity,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:    config.ListenAddr,
		Handler: router,
	}
	go func() {
		logger.Info("サーバーを起動します", zap.String("addr", config.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("サーバーを停止します")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	<-scheduler.Stop().Done()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("サーバーの停止中にエラー発生", zap.Error(err))
	}
	hub.Close()
	closeAll(db, rdb, logger)
}

// originChecker はWebSocketのOriginを許可リストで検査します。リストが空なら全て許可します。
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

func closeAll(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) {
	var errs error
	if db != nil {
		if sqlDB, err := db.DB(); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			errs = multierr.Append(errs, sqlDB.Close())
		}
	}
	if rdb != nil {
		errs = multierr.Append(errs, rdb.Close())
	}
	if errs != nil {
		logger.Error("接続のクローズに失敗しました", zap.Errors("errors", multierr.Errors(errs)))
	}
}
