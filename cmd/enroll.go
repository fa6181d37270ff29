package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/kozaktomas/photo-faces/internal/faces"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a person's face for an uploader",
	Long: `Index the face in a reference photo into the uploader's collection and record
which contact it belongs to. The photo must contain exactly one face.

Examples:
  photo-faces enroll --bucket refs --key bob.jpg --user alice --contact bob@example.com`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("bucket", "", "Bucket of the reference photo")
	enrollCmd.Flags().String("key", "", "Object key of the reference photo")
	enrollCmd.Flags().String("user", "", "Uploader whose collection receives the face")
	enrollCmd.Flags().String("contact", "", "Contact key the face belongs to")
	for _, name := range []string{"bucket", "key", "user", "contact"} {
		enrollCmd.MarkFlagRequired(name)
	}
}

func runEnroll(cmd *cobra.Command, args []string) error {
	image := faces.ImageRef{Bucket: mustGetString(cmd, "bucket"), Key: mustGetString(cmd, "key")}
	user := mustGetString(cmd, "user")
	contact := mustGetString(cmd, "contact")
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	identities, err := database.GetIdentityWriter(ctx)
	if errors.Is(err, database.ErrReadOnly) {
		return fmt.Errorf("%w: enroll faces in the system that owns the enrollment database", err)
	}
	if err != nil {
		return err
	}

	enrolled, err := a.collections.EnrollFaces(ctx, image, user)
	if err != nil {
		return err
	}
	if len(enrolled) != 1 {
		err := fmt.Errorf("expected exactly one face in %s/%s, found %d", image.Bucket, image.Key, len(enrolled))
		return errors.Join(err, a.collections.DeleteFaces(ctx, user, faceIDs(enrolled)))
	}

	face := enrolled[0]
	if err := identities.PutIdentity(ctx, database.IdentityRecord{FaceID: face.FaceID, ContactKey: contact}); err != nil {
		return errors.Join(err, a.collections.DeleteFaces(ctx, user, []string{face.FaceID}))
	}

	color.New(color.FgGreen).Printf("Enrolled face %s", face.FaceID)
	fmt.Printf(" as %s in collection %s\n", contact, user)
	return nil
}

func faceIDs(detected []faces.DetectedFace) []string {
	ids := make([]string, len(detected))
	for i, f := range detected {
		ids[i] = f.FaceID
	}
	return ids
}
