package pubfile

import (
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// DropPrivileges sheds undesirable authority before serving: the global
// filesystem root via chroot when configured, and the calling gid/uid along
// with supplementary groups when non-zero. The working directory always moves
// to the serving root so request paths resolve relative to it.
//
// Order matters: the root first (chroot needs privilege), then groups, then
// the uid last (setuid forfeits the right to do the rest).
func DropPrivileges(config *ServerConfig) error {
	if err := os.Chdir(config.RootDir); err != nil {
		return err
	}
	if config.Chroot {
		if err := unix.Chroot("."); err != nil {
			return os.NewSyscallError("chroot", err)
		}
		log.Info().Msgf("chrooted to %s", config.RootDir)
	}

	if config.Gid > 0 {
		if err := unix.Setgroups([]int{config.Gid}); err != nil {
			return os.NewSyscallError("setgroups", err)
		}
		if err := unix.Setgid(config.Gid); err != nil {
			return os.NewSyscallError("setgid", err)
		}
		log.Info().Msgf("gid = %d", config.Gid)
	}
	if config.Uid > 0 {
		if err := unix.Setuid(config.Uid); err != nil {
			return os.NewSyscallError("setuid", err)
		}
		log.Info().Msgf("uid = %d", config.Uid)
	}
	return nil
}
